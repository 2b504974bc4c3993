// Package busconfig renders D-Bus bus configuration documents and service
// activation files into a private temporary directory.
//
// Each call to Write produces a fresh directory owned by exactly one launch
// attempt. The caller is responsible for removing the directory once the
// daemon using it has been stopped.
package busconfig

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConfFileName is the name of the daemon configuration file inside the
// generated directory.
const ConfFileName = "daemon.conf"

const doctype = `<!DOCTYPE busconfig PUBLIC
 "-//freedesktop//DTD D-Bus Bus Configuration 1.0//EN"
 "http://www.freedesktop.org/standards/dbus/1.0/busconfig.dtd">`

// Service describes a single activation entry: a well-known bus name mapped
// to the executable started on demand when a client requests that name.
type Service struct {
	Name string
	Exec string
}

// Config is the input to Write. String fields use the literal values the
// daemons expect ("session", "EXTERNAL", ...); mapping from API enums happens
// in the caller.
type Config struct {
	BusType        string
	AllowAnonymous bool
	Listen         []string
	Auth           []string
	ServiceDirs    []string
	Services       []Service
}

// Artifacts identifies the filesystem artifacts produced by one Write call.
type Artifacts struct {
	// Dir is the private temporary directory holding every generated file.
	Dir string
	// ConfFile is the path of the daemon configuration document.
	ConfFile string
}

// Write renders cfg into a freshly created temporary directory with
// owner-only permissions and returns the paths of the generated artifacts.
//
// When cfg contains services, one NAME.service file per entry is written
// into the directory and the directory itself is added as a service
// directory. When cfg has no listen address, a unix:dir address rooted at
// the directory is injected so the daemon always has somewhere to listen.
//
// On error no artifacts are left behind.
func Write(cfg Config) (*Artifacts, error) {
	dir, err := os.MkdirTemp("", "dbus-launch-")
	if err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}

	keep := false
	defer func() {
		if !keep {
			os.RemoveAll(dir)
		}
	}()

	if len(cfg.Services) > 0 {
		cfg.ServiceDirs = append(cfg.ServiceDirs, dir)
		for _, svc := range cfg.Services {
			path := filepath.Join(dir, svc.Name+".service")
			contents := fmt.Sprintf("[D-BUS Service]\nName=%s\nExec=%s\n", svc.Name, svc.Exec)
			if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
				return nil, fmt.Errorf("write service file for %s: %w", svc.Name, err)
			}
		}
	}

	if len(cfg.Listen) == 0 {
		cfg.Listen = []string{"unix:dir=" + escapePath(dir)}
	}

	doc, err := render(cfg)
	if err != nil {
		return nil, err
	}

	confFile := filepath.Join(dir, ConfFileName)
	if err := os.WriteFile(confFile, []byte(doc), 0o600); err != nil {
		return nil, fmt.Errorf("write %s: %w", ConfFileName, err)
	}

	keep = true
	return &Artifacts{Dir: dir, ConfFile: confFile}, nil
}

type busconfigXML struct {
	XMLName        xml.Name  `xml:"busconfig"`
	Type           string    `xml:"type,omitempty"`
	AllowAnonymous *struct{} `xml:"allow_anonymous,omitempty"`
	Listen         []string  `xml:"listen"`
	Auth           []string  `xml:"auth"`
	ServiceDir     []string  `xml:"servicedir"`
	Policy         policyXML `xml:"policy"`
}

type policyXML struct {
	Context string     `xml:"context,attr"`
	Allow   []allowXML `xml:"allow"`
}

type allowXML struct {
	ReceiveRequestedReply string `xml:"receive_requested_reply,attr,omitempty"`
	SendDestination       string `xml:"send_destination,attr,omitempty"`
	Own                   string `xml:"own,attr,omitempty"`
}

// render produces the full configuration document: the busconfig DOCTYPE
// followed by the directives from cfg and a default policy permitting
// same-user session traffic.
func render(cfg Config) (string, error) {
	doc := busconfigXML{
		Type:       cfg.BusType,
		Listen:     cfg.Listen,
		Auth:       cfg.Auth,
		ServiceDir: cfg.ServiceDirs,
		Policy: policyXML{
			Context: "default",
			Allow: []allowXML{
				{ReceiveRequestedReply: "true"},
				{SendDestination: "*"},
				{Own: "*"},
			},
		},
	}
	if cfg.AllowAnonymous {
		doc.AllowAnonymous = &struct{}{}
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render bus configuration: %w", err)
	}

	var b strings.Builder
	b.WriteString(doctype)
	b.WriteString("\n")
	b.Write(body)
	b.WriteString("\n")
	return b.String(), nil
}

// escapePath percent-escapes a filesystem path for use inside a D-Bus server
// address. Bytes outside the address format's optionally-escaped set are
// replaced by %XX sequences.
func escapePath(path string) string {
	var b strings.Builder
	for i := 0; i < len(path); i++ {
		c := path[i]
		switch {
		case c == '-' || c == '_' || c == '/' || c == '.' || c == '\\',
			c >= '0' && c <= '9',
			c >= 'A' && c <= 'Z',
			c >= 'a' && c <= 'z':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02x", c)
		}
	}
	return b.String()
}
