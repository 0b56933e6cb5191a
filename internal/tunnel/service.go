package tunnel

import (
	"context"
	"fmt"

	"nasheedpro/internal/config"

	"github.com/sirupsen/logrus"
	"golang.ngrok.com/ngrok/v2"
)

// Service forwards the local server through an ngrok endpoint so a library
// can be shared outside the local network. Disabled by default.
type Service struct {
	config *config.TunnelConfig
	agent  ngrok.Agent
	tunnel ngrok.EndpointForwarder
	logger *logrus.Logger
}

// NewService creates a new tunnel service instance. Returns nil when the
// tunnel is disabled in configuration.
func NewService(cfg *config.TunnelConfig) (*Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	if cfg.AuthToken == "" {
		return nil, fmt.Errorf("tunnel auth token not found; set NGROK_AUTHTOKEN or tunnel.auth_token")
	}

	agent, err := ngrok.NewAgent(ngrok.WithAuthtoken(cfg.AuthToken))
	if err != nil {
		return nil, fmt.Errorf("failed to create ngrok agent: %w", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	return &Service{
		config: cfg,
		agent:  agent,
		logger: logger,
	}, nil
}

// Start opens the tunnel forwarding to the local address.
func (s *Service) Start(ctx context.Context, localAddress string) error {
	if s == nil {
		return nil // Service is disabled
	}

	var endpointOpts []ngrok.EndpointOption
	if s.config.Domain != "" {
		endpointOpts = append(endpointOpts, ngrok.WithURL(s.config.Domain))
	}

	tunnel, err := s.agent.Forward(ctx, ngrok.WithUpstream(localAddress), endpointOpts...)
	if err != nil {
		return fmt.Errorf("failed to create tunnel: %w", err)
	}

	s.tunnel = tunnel
	s.logger.WithFields(logrus.Fields{
		"public_url": tunnel.URL().String(),
		"upstream":   localAddress,
	}).Info("Tunnel active")

	return nil
}

// PublicURL returns the public URL of the tunnel ("" when not running).
func (s *Service) PublicURL() string {
	if s == nil || s.tunnel == nil {
		return ""
	}
	return s.tunnel.URL().String()
}

// Stop closes the tunnel (idempotent).
func (s *Service) Stop() error {
	if s == nil || s.tunnel == nil {
		return nil
	}

	s.logger.Info("Stopping tunnel")
	return s.tunnel.Close()
}
