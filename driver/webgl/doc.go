// Package webgl implements the driver contract on WebGL 1 for js/wasm.
//
// The device draws to a canvas element created on open; it is attached to
// the document body only when driver.Config.Visible is set. The context is
// requested with preserveDrawingBuffer so that the canvas can be read back
// after a run. On other platforms the package is empty.
//
// When compiled in, the driver registers itself under driver.NameWebGL.
package webgl
