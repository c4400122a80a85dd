package model

import (
	"fmt"
	"time"
)

type EndpointKind string

const (
	EndpointLocal EndpointKind = "local"
	EndpointSFTP  EndpointKind = "sftp"
	EndpointFTP   EndpointKind = "ftp"
)

// Endpoint describes one side of a sync task.
type Endpoint struct {
	Kind EndpointKind `mapstructure:"kind" json:"kind"`
	Path string       `mapstructure:"path" json:"path"`

	Host           string        `mapstructure:"host" json:"host,omitempty"`
	Port           int           `mapstructure:"port" json:"port,omitempty"`
	Username       string        `mapstructure:"username" json:"username,omitempty"`
	Password       string        `mapstructure:"password" json:"-"`
	PrivateKeyPath string        `mapstructure:"private_key" json:"private_key,omitempty"`
	Timeout        time.Duration `mapstructure:"timeout" json:"timeout,omitempty"`
	PassiveMode    bool          `mapstructure:"passive_mode" json:"passive_mode,omitempty"`
}

func (e Endpoint) Addr() string {
	port := e.Port
	if port == 0 {
		switch e.Kind {
		case EndpointSFTP:
			port = 22
		case EndpointFTP:
			port = 21
		}
	}
	return fmt.Sprintf("%s:%d", e.Host, port)
}

func (e Endpoint) String() string {
	switch e.Kind {
	case EndpointLocal:
		return e.Path
	default:
		return fmt.Sprintf("%s://%s@%s%s", e.Kind, e.Username, e.Addr(), e.Path)
	}
}
