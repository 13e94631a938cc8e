package models

import (
	"fmt"
	"time"
)

// Server is a remote machine managed over SSH.
type Server struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IP        string    `json:"ip"`
	Port      int       `json:"port"`
	SSHUser   string    `json:"sshUser"`
	CreatedAt time.Time `json:"createdAt"`
}

// Address returns the host:port the SSH transport dials.
func (s Server) Address() string {
	port := s.Port
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%s:%d", s.IP, port)
}
