package models

import "time"

// Tenant is the client account that owns documents and artifacts.
type Tenant struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}
