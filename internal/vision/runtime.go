package vision

import (
	"fmt"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"
)

// InitRuntime loads the ONNX Runtime shared library. libPath may be empty to
// use the platform default name.
func InitRuntime(libPath string) error {
	if libPath == "" {
		libPath = defaultLibPath()
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnx runtime (%s): %w", libPath, err)
	}
	return nil
}

// DestroyRuntime releases the ONNX Runtime environment.
func DestroyRuntime() error {
	return ort.DestroyEnvironment()
}

func defaultLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}
