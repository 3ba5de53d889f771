package driver

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
)

// ShaderError reports a shader that failed to compile.
type ShaderError struct {
	Stage gputypes.ShaderStage

	// Log is the compiler diagnostic output.
	Log string
}

func (e *ShaderError) Error() string {
	return fmt.Sprintf("driver: %s shader compilation failed: %s",
		strings.ToLower(e.Stage.String()), strings.TrimSpace(e.Log))
}

// LinkError reports a program that failed to link.
type LinkError struct {
	// Log is the linker diagnostic output.
	Log string
}

func (e *LinkError) Error() string {
	return "driver: program link failed: " + strings.TrimSpace(e.Log)
}
