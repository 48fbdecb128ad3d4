package config

import (
	"fmt"
	"time"
)

// GRPCServerConfig configures the gRPC API server.
type GRPCServerConfig struct {
	Port string `envconfig:"PORT" default:"50051"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	MaxConcurrentStreams uint32        `envconfig:"MAX_CONCURRENT_STREAMS" default:"100"`
	MaxRecvMsgBytes      int           `envconfig:"MAX_RECV_MSG_BYTES" default:"4194304" validate:"min=1"`
	KeepaliveTime        time.Duration `envconfig:"KEEPALIVE_TIME" default:"120s"`
	KeepaliveTimeout     time.Duration `envconfig:"KEEPALIVE_TIMEOUT" default:"20s"`
	MaxConnectionAge     time.Duration `envconfig:"MAX_CONNECTION_AGE" default:"300s"`
}

// Address returns the listen address in host:port format.
func (c *GRPCServerConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Validate performs validation on the GRPCServerConfig.
func (c *GRPCServerConfig) Validate() error {
	if err := validatePort(c.Port, "grpc api"); err != nil {
		return err
	}
	return validateHost(c.Host, "grpc api")
}
