package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skosovsky/fncall"
)

// functionsFile is the YAML document read by --functions.
type functionsFile struct {
	Functions []functionDef `yaml:"functions"`
}

// functionDef declares one function. A function with a fixed result or error runs
// locally and validates its arguments against parameters; any other function is remote.
type functionDef struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Parameters  map[string]any `yaml:"parameters"`
	Result      any            `yaml:"result"`
	Error       string         `yaml:"error"`
	Timeout     string         `yaml:"timeout"`
	Tags        []string       `yaml:"tags"`
	Dangerous   bool           `yaml:"dangerous"`
}

func (s functionDef) local() bool {
	return s.Result != nil || s.Error != ""
}

func loadFunctions(path string) ([]fncall.Function, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read functions file: %w", err)
	}
	return parseFunctions(data)
}

func parseFunctions(data []byte) ([]fncall.Function, error) {
	var file functionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse functions file: %w", err)
	}
	fns := make([]fncall.Function, 0, len(file.Functions))
	for i, def := range file.Functions {
		fn, err := def.build()
		if err != nil {
			return nil, fmt.Errorf("function %d (%q): %w", i, def.Name, err)
		}
		fns = append(fns, fn)
	}
	return fns, nil
}

func (s functionDef) build() (fncall.Function, error) {
	var opts []fncall.FunctionOption
	if s.Timeout != "" {
		d, err := time.ParseDuration(s.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout: %w", err)
		}
		opts = append(opts, fncall.WithTimeout(d))
	}
	if len(s.Tags) > 0 {
		opts = append(opts, fncall.WithTags(s.Tags...))
	}
	if s.Dangerous {
		opts = append(opts, fncall.WithDangerous())
	}

	schema := fncall.ToolSchema{Name: s.Name, Description: s.Description, Parameters: s.Parameters}
	if !s.local() {
		return fncall.NewRemoteFunction(schema, opts...)
	}
	result, failure := s.Result, s.Error
	invoke := func(context.Context, any) (any, error) {
		if failure != "" {
			return nil, errors.New(failure)
		}
		return result, nil
	}
	if s.Parameters == nil {
		return fncall.NewLocalFunction(schema, invoke, opts...)
	}
	return fncall.NewDynamicFunction(s.Name, s.Description, s.Parameters, invoke, opts...)
}
