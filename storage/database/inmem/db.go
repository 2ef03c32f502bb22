// Package inmemdb provides in-memory repositories for unit tests. It keeps
// the stored entities behind a single RWMutex; it does not provide real
// transaction isolation.
package inmemdb

import (
	"sync"

	"github.com/tatumdale/studystreaks/core/audit"
	"github.com/tatumdale/studystreaks/core/authz"
	"github.com/tatumdale/studystreaks/core/principal"
	"github.com/tatumdale/studystreaks/core/school"
	"github.com/tatumdale/studystreaks/core/tenant"
)

type DB struct {
	sync.RWMutex

	schools    map[string]*school.School
	principals map[string]*principal.Principal
	profiles   map[string][]principal.Profile // keyed by principal id
	grants     map[string][]authz.Grant       // keyed by principal id
	entities   map[tenant.Kind]map[string]tenant.Entity
	auditLog   []audit.Entry
}

func Open() (*DB, error) {
	db := &DB{
		schools:    make(map[string]*school.School),
		principals: make(map[string]*principal.Principal),
		profiles:   make(map[string][]principal.Profile),
		grants:     make(map[string][]authz.Grant),
		entities:   make(map[tenant.Kind]map[string]tenant.Entity),
	}
	for _, kind := range tenant.AllKinds {
		db.entities[kind] = make(map[string]tenant.Entity)
	}
	return db, nil
}
