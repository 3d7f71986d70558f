package sandbox

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/spf13/afero"
	"go.starlark.net/starlark"
)

// file is the value returned by open(). Files live in the evaluation's
// in-memory filesystem.
type file struct {
	name     string
	mode     string
	f        afero.File
	r        *bufio.Reader
	readable bool
	writable bool
	closed   bool
}

var (
	_ starlark.HasAttrs = (*file)(nil)
	_ starlark.Iterable = (*file)(nil)
)

func openFile(fs afero.Fs, name, mode string) (*file, error) {
	m := strings.NewReplacer("t", "", "b", "").Replace(mode)
	plus := strings.Contains(m, "+")
	m = strings.ReplaceAll(m, "+", "")

	fl := &file{name: name, mode: mode}
	var flag int
	switch m {
	case "r":
		flag, fl.readable = os.O_RDONLY, true
		if plus {
			flag, fl.writable = os.O_RDWR, true
		}
	case "w":
		flag, fl.writable = os.O_WRONLY|os.O_CREATE|os.O_TRUNC, true
	case "a":
		flag, fl.writable = os.O_WRONLY|os.O_CREATE|os.O_APPEND, true
	case "x":
		if _, err := fs.Stat(name); err == nil {
			return nil, fmt.Errorf("FileExistsError: [Errno 17] File exists: '%s'", name)
		}
		flag, fl.writable = os.O_WRONLY|os.O_CREATE, true
	default:
		return nil, fmt.Errorf("ValueError: invalid mode: '%s'", mode)
	}
	if plus && m != "r" {
		flag = flag&^os.O_WRONLY | os.O_RDWR
		fl.readable = true
	}

	f, err := fs.OpenFile(name, flag, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("FileNotFoundError: [Errno 2] No such file or directory: '%s'", name)
		}
		return nil, fmt.Errorf("OSError: %v", err)
	}
	fl.f = f
	fl.r = bufio.NewReader(f)
	return fl, nil
}

func (fl *file) String() string {
	return fmt.Sprintf("<_io.TextIOWrapper name='%s' mode='%s' encoding='UTF-8'>", fl.name, fl.mode)
}
func (fl *file) Type() string          { return "TextIOWrapper" }
func (fl *file) Freeze()               {}
func (fl *file) Truth() starlark.Bool  { return starlark.True }
func (fl *file) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: TextIOWrapper") }

var fileMethods = map[string]*starlark.Builtin{
	"read":       starlark.NewBuiltin("read", fileRead),
	"readline":   starlark.NewBuiltin("readline", fileReadline),
	"readlines":  starlark.NewBuiltin("readlines", fileReadlines),
	"write":      starlark.NewBuiltin("write", fileWrite),
	"writelines": starlark.NewBuiltin("writelines", fileWritelines),
	"close":      starlark.NewBuiltin("close", fileClose),
}

func (fl *file) Attr(name string) (starlark.Value, error) {
	switch name {
	case "name":
		return starlark.String(fl.name), nil
	case "mode":
		return starlark.String(fl.mode), nil
	case "closed":
		return starlark.Bool(fl.closed), nil
	}
	if b, ok := fileMethods[name]; ok {
		return b.BindReceiver(fl), nil
	}
	return nil, nil
}

func (fl *file) AttrNames() []string {
	names := []string{"closed", "mode", "name"}
	for name := range fileMethods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (fl *file) Iterate() starlark.Iterator {
	return &lineIterator{fl: fl}
}

type lineIterator struct {
	fl *file
}

func (it *lineIterator) Next(p *starlark.Value) bool {
	line, err := it.fl.readLine()
	if err != nil || line == "" {
		return false
	}
	*p = starlark.String(line)
	return true
}

func (it *lineIterator) Done() {}

func (fl *file) check(read bool) error {
	switch {
	case fl.closed:
		return fmt.Errorf("ValueError: I/O operation on closed file.")
	case read && !fl.readable:
		return fmt.Errorf("io.UnsupportedOperation: not readable")
	case !read && !fl.writable:
		return fmt.Errorf("io.UnsupportedOperation: not writable")
	}
	return nil
}

func (fl *file) readLine() (string, error) {
	if err := fl.check(true); err != nil {
		return "", err
	}
	line, err := fl.r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return line, nil
}

func fileRead(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	fl := b.Receiver().(*file)
	size := -1
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0, &size); err != nil {
		return nil, err
	}
	if err := fl.check(true); err != nil {
		return nil, err
	}
	if size < 0 {
		data, err := io.ReadAll(fl.r)
		if err != nil {
			return nil, err
		}
		return starlark.String(data), nil
	}
	var sb strings.Builder
	for i := 0; i < size; i++ {
		r, _, err := fl.r.ReadRune()
		if err != nil {
			break
		}
		sb.WriteRune(r)
	}
	return starlark.String(sb.String()), nil
}

func fileReadline(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	line, err := b.Receiver().(*file).readLine()
	if err != nil {
		return nil, err
	}
	return starlark.String(line), nil
}

func fileReadlines(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	fl := b.Receiver().(*file)
	var lines []starlark.Value
	for {
		line, err := fl.readLine()
		if err != nil {
			return nil, err
		}
		if line == "" {
			break
		}
		lines = append(lines, starlark.String(line))
	}
	return starlark.NewList(lines), nil
}

func fileWrite(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	n, err := b.Receiver().(*file).write(v)
	if err != nil {
		return nil, err
	}
	return starlark.MakeInt(n), nil
}

func (fl *file) write(v starlark.Value) (int, error) {
	s, ok := v.(starlark.String)
	if !ok {
		return 0, fmt.Errorf("TypeError: write() argument must be str, not %s", pyTypeName(v))
	}
	if err := fl.check(false); err != nil {
		return 0, err
	}
	if _, err := fl.f.WriteString(string(s)); err != nil {
		return 0, fmt.Errorf("OSError: %v", err)
	}
	return utf8.RuneCountInString(string(s)), nil
}

func fileWritelines(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var lines starlark.Iterable
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &lines); err != nil {
		return nil, err
	}
	fl := b.Receiver().(*file)
	it := lines.Iterate()
	defer it.Done()
	var line starlark.Value
	for it.Next(&line) {
		if _, err := fl.write(line); err != nil {
			return nil, err
		}
	}
	return starlark.None, nil
}

func fileClose(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	fl := b.Receiver().(*file)
	if !fl.closed {
		fl.closed = true
		if err := fl.f.Close(); err != nil {
			return nil, fmt.Errorf("OSError: %v", err)
		}
	}
	return starlark.None, nil
}
