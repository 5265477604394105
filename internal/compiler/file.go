package compiler

import (
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/rewind/internal/ir"
)

// CompileFiles compiles the class declarations of every file into one set and
// validates it. Files are compiled independently, so a class name declared
// in two files is reported as a duplicate.
func CompileFiles(paths ...string) ([]ir.ClassSpec, error) {
	ctx := cuecontext.New()

	var classes []ir.ClassSpec
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read class file: %w", err)
		}
		v := ctx.CompileBytes(data, cue.Filename(path))
		if err := v.Err(); err != nil {
			return nil, formatCUEError(err)
		}
		compiled, err := CompileClasses(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		classes = append(classes, compiled...)
	}

	if errs := Validate(classes); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return classes, nil
}

// ValidationErrors joins validation failures into one error.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return strings.Join(msgs, "; ")
}
