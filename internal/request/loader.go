package request

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

//go:embed schema.cue
var schemaSource string

// LoadMode controls how errors are handled while loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult holds the requests found in a directory or file.
type LoadResult struct {
	Requests  []*Request
	FileCount int
}

// Find returns the request with the given name. An empty name selects the
// only request of the result.
func (r *LoadResult) Find(name string) (*Request, error) {
	if name == "" {
		if len(r.Requests) == 1 {
			return r.Requests[0], nil
		}
		names := make([]string, len(r.Requests))
		for i, req := range r.Requests {
			names[i] = req.Name
		}
		return nil, &LoadError{Code: ErrCodeNoRequest, Message: fmt.Sprintf("%d requests found, pick one of %v", len(names), names)}
	}
	for _, req := range r.Requests {
		if req.Name == name {
			return req, nil
		}
	}
	return nil, &LoadError{Code: ErrCodeNoRequest, Message: fmt.Sprintf("request %q not found", name)}
}

// Loader compiles request files against the request schema.
//
// Thread-safety: a Loader is not safe for concurrent use; CUE values of one
// context must not be built from several goroutines.
type Loader struct {
	ctx    *cue.Context
	schema cue.Value
}

// NewLoader creates a Loader with its own CUE context.
func NewLoader() *Loader {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		// The schema is embedded; failing to compile it is a build defect.
		panic(fmt.Sprintf("request schema: %v", err))
	}
	return &Loader{ctx: ctx, schema: schema.LookupPath(cue.ParsePath("#Request"))}
}

// LoadDir loads the CUE package in dir and parses every request under its
// top-level "request" struct.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func (l *Loader) LoadDir(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("requests directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing requests directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := l.ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{fromCUE(err, ErrCodeBuildFailed)}
	}

	result, errs := l.parseAll(value, mode)
	if result != nil {
		result.FileCount = len(files)
	}
	return result, errs
}

// LoadFile loads the requests of a single CUE file.
func (l *Loader) LoadFile(path string, mode LoadMode) (*LoadResult, []error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("request file not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading %s: %v", path, err)}}
	}
	result, errs := l.LoadBytes(path, data, mode)
	if result != nil {
		result.FileCount = 1
	}
	return result, errs
}

// LoadBytes loads the requests of CUE source. filename is used in
// positions.
func (l *Loader) LoadBytes(filename string, src []byte, mode LoadMode) (*LoadResult, []error) {
	value := l.ctx.CompileBytes(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, []error{fromCUE(err, ErrCodeBuildFailed)}
	}
	return l.parseAll(value, mode)
}

func (l *Loader) parseAll(value cue.Value, mode LoadMode) (*LoadResult, []error) {
	var errs []error
	result := &LoadResult{}

	requests := value.LookupPath(cue.ParsePath("request"))
	if !requests.Exists() {
		return result, []error{&LoadError{Code: ErrCodeNoRequest, Message: "no requests found"}}
	}

	iter, err := requests.Fields()
	if err != nil {
		return result, []error{fromCUE(err, ErrCodeGeneric)}
	}
	for iter.Next() {
		req, err := l.Parse(iter.Label(), iter.Value())
		if err != nil {
			errs = append(errs, err)
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		result.Requests = append(result.Requests, req)
	}

	if len(result.Requests) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoRequest, Message: "no requests found", Pos: requests.Pos()})
	}
	return result, errs
}

// Parse checks v against the request schema and converts it.
func (l *Loader) Parse(name string, v cue.Value) (*Request, error) {
	v = l.schema.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fromCUE(err, ErrCodeSchema)
	}
	return parseRequest(name, v)
}

// FindCUEFiles walks the directory and returns all .cue file paths, sorted.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}
