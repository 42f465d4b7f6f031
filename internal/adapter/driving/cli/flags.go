package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
)

// ErrUsage is returned for invalid command lines.
var ErrUsage = errors.New("usage error")

// Mode is the operation selected on the command line.
type Mode string

const (
	ModeInit    Mode = "init"
	ModeOpen    Mode = "open"
	ModeEdit    Mode = "edit"
	ModeList    Mode = "list"
	ModeDelete  Mode = "delete"
	ModeExport  Mode = "export"
	ModeImport  Mode = "import"
	ModeVersion Mode = "version"
)

// Command is a parsed command line.
type Command struct {
	Mode    Mode
	Service string
	// Path is the coffin path; empty selects the configured default.
	Path string
	// File is the backup file for export and import.
	File string
}

// Usage is printed for -h and usage errors.
const Usage = `seccin - Secret in Coffin
  Tool to encrypt passwords and other secret information for different services.

Usage:
  seccin --init   [path]            create new crypted coffin
  seccin --open   service [path]    print the secret stored for service
  seccin --edit   service [path]    edit the secret stored for service
  seccin --list   [path]            list stored services
  seccin --delete service [path]    delete the secret stored for service
  seccin --export file [path]       write an encrypted backup of all secrets
  seccin --import file [path]       merge an encrypted backup into the coffin
  seccin --version

Flags:
  -i, --init      -o, --open      -e, --edit      -l, --list
  -d, --delete    --export FILE   --import FILE   --version

path defaults to ./coffin (or SECCIN_COFFIN).
`

// ParseArgs parses args (without the program name). Flags and positional
// arguments may be interleaved.
func ParseArgs(args []string) (Command, error) {
	fs := flag.NewFlagSet("seccin", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var initF, openF, editF, listF, deleteF, versionF bool
	var exportFile, importFile string
	for _, f := range []struct {
		dst         *bool
		long, short string
		usage       string
	}{
		{&initF, "init", "i", "create new crypted coffin"},
		{&openF, "open", "o", "print the secret for a service"},
		{&editF, "edit", "e", "edit the secret for a service"},
		{&listF, "list", "l", "list stored services"},
		{&deleteF, "delete", "d", "delete the secret for a service"},
	} {
		fs.BoolVar(f.dst, f.long, false, f.usage)
		fs.BoolVar(f.dst, f.short, false, f.usage)
	}
	fs.BoolVar(&versionF, "version", false, "print version")
	fs.StringVar(&exportFile, "export", "", "write an encrypted backup to FILE")
	fs.StringVar(&importFile, "import", "", "merge an encrypted backup from FILE")

	var positional []string
	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return Command{}, fmt.Errorf("%w: help requested", ErrUsage)
			}
			return Command{}, fmt.Errorf("%w: %v", ErrUsage, err)
		}
		rest = fs.Args()
		if len(rest) == 0 {
			break
		}
		positional = append(positional, rest[0])
		rest = rest[1:]
	}

	var modes []Mode
	add := func(set bool, m Mode) {
		if set {
			modes = append(modes, m)
		}
	}
	add(initF, ModeInit)
	add(openF, ModeOpen)
	add(editF, ModeEdit)
	add(listF, ModeList)
	add(deleteF, ModeDelete)
	add(exportFile != "", ModeExport)
	add(importFile != "", ModeImport)
	add(versionF, ModeVersion)

	switch len(modes) {
	case 0:
		return Command{}, fmt.Errorf("%w: no operation given", ErrUsage)
	case 1:
	default:
		return Command{}, fmt.Errorf("%w: operations %v are mutually exclusive", ErrUsage, modes)
	}

	cmd := Command{Mode: modes[0], File: exportFile + importFile}

	switch cmd.Mode {
	case ModeVersion:
		if len(positional) > 0 {
			return Command{}, fmt.Errorf("%w: --version takes no arguments", ErrUsage)
		}
	case ModeInit, ModeList, ModeExport, ModeImport:
		if len(positional) > 1 {
			return Command{}, fmt.Errorf("%w: --%s takes at most a path", ErrUsage, cmd.Mode)
		}
		if len(positional) == 1 {
			cmd.Path = positional[0]
		}
	case ModeOpen, ModeEdit, ModeDelete:
		switch len(positional) {
		case 0:
			return Command{}, fmt.Errorf("%w: --%s requires a service", ErrUsage, cmd.Mode)
		case 1:
			cmd.Service = positional[0]
		case 2:
			cmd.Service, cmd.Path = positional[0], positional[1]
		default:
			return Command{}, fmt.Errorf("%w: --%s takes a service and at most a path", ErrUsage, cmd.Mode)
		}
	}

	return cmd, nil
}
