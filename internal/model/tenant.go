// internal/model/tenant.go
package model

import (
	"fmt"
	"net/url"
	"time"
)

type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
)

// TenantDescriptor is the gateway's read-only view of one onboarded tenant:
// where its private database lives and the catalog text handed to the
// SQL-generation collaborator. The admin store owns the record; the gateway
// only holds time-bounded cached copies.
type TenantDescriptor struct {
	Key       string       `db:"user_email"`
	Host      string       `db:"host"`
	Port      int          `db:"port"`
	User      string       `db:"db_user"`
	Password  string       `db:"db_password"`
	Database  string       `db:"db_name"`
	Catalog   string       `db:"catalog_markdown"`
	Status    TenantStatus `db:"status"`
	CreatedAt time.Time    `db:"created_at"`
}

// DSN builds the connection string for the tenant's private database.
func (d *TenantDescriptor) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Database,
	}
	q := u.Query()
	q.Set("sslmode", "prefer")
	u.RawQuery = q.Encode()
	return u.String()
}
