package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/fjl/ftxfer/fileserver"
	"gopkg.in/yaml.v3"
)

// serverConfig is the content of the configuration file.
// Command line flags take precedence over values set here.
type serverConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Dir  string `yaml:"dir"`

	DialTimeout     time.Duration `yaml:"dial_timeout"`
	ResponseTimeout time.Duration `yaml:"response_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
}

func defaultServerConfig() serverConfig {
	return serverConfig{Dir: "."}
}

// loadConfig reads the configuration file. Unknown keys are an error.
func loadConfig(file string) (serverConfig, error) {
	cfg := defaultServerConfig()
	content, err := os.ReadFile(file)
	if err != nil {
		return cfg, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("invalid config file %s: %w", file, err)
	}
	return cfg, nil
}

func (c *serverConfig) validate() error {
	if c.Port < fileserver.MinDataPort || c.Port > fileserver.MaxDataPort {
		return fmt.Errorf("port %d out of range %d..%d", c.Port, fileserver.MinDataPort, fileserver.MaxDataPort)
	}
	if c.Dir == "" {
		return errors.New("no directory given")
	}
	st, err := os.Stat(c.Dir)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("%s is not a directory", c.Dir)
	}
	return nil
}

func (c *serverConfig) listenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *serverConfig) fileserverConfig() fileserver.Config {
	return fileserver.Config{
		DialTimeout:     c.DialTimeout,
		ResponseTimeout: c.ResponseTimeout,
		IdleTimeout:     c.IdleTimeout,
		Handler:         fileserver.ServeFS(os.DirFS(c.Dir)),
	}
}
