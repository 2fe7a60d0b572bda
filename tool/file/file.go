// Package file provides read_file, save_file and list_files. All paths are
// resolved inside a base directory; escaping it fails.
package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/hupe1980/assistmesh/core"
	"github.com/hupe1980/assistmesh/tool"
)

// Tool names.
const (
	ReadFile  = "read_file"
	SaveFile  = "save_file"
	ListFiles = "list_files"
)

// Options configures the file tools.
type Options struct {
	// MaxReadBytes caps read_file output (default 1 MiB).
	MaxReadBytes int64

	// ReadOnly omits save_file.
	ReadOnly bool
}

type readArgs struct {
	FileName string `json:"file_name" jsonschema:"description=The name of the file to read"`
}

type saveArgs struct {
	Contents  string `json:"contents" jsonschema:"description=The contents to save"`
	FileName  string `json:"file_name" jsonschema:"description=The name of the file to save to"`
	Overwrite *bool  `json:"overwrite,omitempty" jsonschema:"description=Overwrite the file if it already exists,default=true"`
}

type listArgs struct {
	Dir string `json:"dir,omitempty" jsonschema:"description=Subdirectory to list. Defaults to the base directory"`
}

// Tools opens baseDir and returns the file tools confined to it.
func Tools(baseDir string, optFns ...func(o *Options)) ([]tool.Tool, error) {
	opts := Options{MaxReadBytes: 1 << 20}
	for _, fn := range optFns {
		fn(&opts)
	}

	root, err := os.OpenRoot(baseDir)
	if err != nil {
		return nil, fmt.Errorf("file tools: %w", err)
	}

	ft := &files{root: root, opts: opts}

	tools := []tool.Tool{
		tool.NewTypedTool(ReadFile, "Reads the contents of the file file_name and returns the contents if successful.", ft.read),
	}
	if !opts.ReadOnly {
		tools = append(tools, tool.NewTypedTool(SaveFile, "Saves the contents to a file called file_name and returns the file name if successful.", ft.save))
	}
	tools = append(tools, tool.NewTypedTool(ListFiles, "Returns a list of files in the base directory.", ft.list))

	return tools, nil
}

type files struct {
	root *os.Root
	opts Options
}

func (f *files) read(tc *core.ToolContext, args readArgs) (any, error) {
	info, err := f.root.Stat(args.FileName)
	if err != nil {
		return nil, pathError(err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", args.FileName)
	}
	if info.Size() > f.opts.MaxReadBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", args.FileName, f.opts.MaxReadBytes)
	}

	data, err := fs.ReadFile(f.root.FS(), args.FileName)
	if err != nil {
		return nil, pathError(err)
	}

	tc.LogDebug("tool.file.read", "file", args.FileName, "bytes", len(data))

	return string(data), nil
}

func (f *files) save(tc *core.ToolContext, args saveArgs) (any, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if args.Overwrite != nil && !*args.Overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}

	out, err := f.root.OpenFile(args.FileName, flags, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("file %s already exists", args.FileName)
		}
		return nil, pathError(err)
	}

	if _, err := out.WriteString(args.Contents); err != nil {
		_ = out.Close()
		return nil, err
	}
	if err := out.Close(); err != nil {
		return nil, err
	}

	tc.LogInfo("tool.file.save", "file", args.FileName, "bytes", len(args.Contents))

	return args.FileName, nil
}

func (f *files) list(_ *core.ToolContext, args listArgs) (any, error) {
	dir := args.Dir
	if dir == "" {
		dir = "."
	}

	entries, err := fs.ReadDir(f.root.FS(), dir)
	if err != nil {
		return nil, pathError(err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	return names, nil
}

// pathError hides absolute host paths from the model.
func pathError(err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return fmt.Errorf("%s %s: %v", pe.Op, pe.Path, pe.Err)
	}
	return err
}
