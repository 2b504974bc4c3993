package dbuslaunch

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// launchFile is the on-disk form of a launcher configuration:
//
//	type: daemon
//	bus: session
//	timeout: 10s
//	grace_period: 500ms
//	services:
//	  - name: com.example.Test
//	    exec: /usr/lib/test-service
type launchFile struct {
	Type           string              `yaml:"type"`
	Bus            string              `yaml:"bus"`
	Program        string              `yaml:"program"`
	Listen         []string            `yaml:"listen"`
	AllowAnonymous bool                `yaml:"allow_anonymous"`
	Auth           []string            `yaml:"auth"`
	ServiceDirs    []string            `yaml:"service_dirs"`
	Timeout        string              `yaml:"timeout"`
	GracePeriod    string              `yaml:"grace_period"`
	Services       []launchFileService `yaml:"services"`
}

type launchFileService struct {
	Name string `yaml:"name"`
	Exec string `yaml:"exec"`
}

// LoadFile reads a YAML launcher configuration and returns the equivalent
// builder, ready to Launch.
func LoadFile(path string) (*Launcher, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read launch file: %w", err)
	}

	var file launchFile
	if err := yaml.Unmarshal(contents, &file); err != nil {
		return nil, fmt.Errorf("parse launch file %s: %w", path, err)
	}
	return file.toLauncher()
}

func (f *launchFile) toLauncher() (*Launcher, error) {
	var l *Launcher
	switch f.Type {
	case "", "daemon":
		l = NewDaemon()
	case "broker":
		l = NewBroker()
	default:
		return nil, fmt.Errorf("unknown daemon type %q", f.Type)
	}

	switch f.Bus {
	case "":
	case "session":
		l.BusType(SessionBus)
	case "system":
		l.BusType(SystemBus)
	default:
		return nil, fmt.Errorf("unknown bus type %q", f.Bus)
	}

	if f.Program != "" {
		l.Program(f.Program)
	}
	for _, addr := range f.Listen {
		l.Listen(addr)
	}
	if f.AllowAnonymous {
		l.AllowAnonymous()
	}

	for _, name := range f.Auth {
		switch name {
		case "anonymous":
			l.Auth(AuthAnonymous)
		case "external":
			l.Auth(AuthExternal)
		case "cookie_sha1":
			l.Auth(AuthCookieSHA1)
		default:
			return nil, fmt.Errorf("unknown auth mechanism %q", name)
		}
	}

	for _, dir := range f.ServiceDirs {
		l.ServiceDir(dir)
	}
	for _, svc := range f.Services {
		l.Service(svc.Name, svc.Exec)
	}

	if f.Timeout != "" {
		d, err := time.ParseDuration(f.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout: %w", err)
		}
		l.Timeout(d)
	}
	if f.GracePeriod != "" {
		d, err := time.ParseDuration(f.GracePeriod)
		if err != nil {
			return nil, fmt.Errorf("invalid grace_period: %w", err)
		}
		l.GracePeriod(d)
	}
	return l, nil
}
