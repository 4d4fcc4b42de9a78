// Classhour is the scheduling server for a small school: it stores lessons
// and teacher unavailability in sqlite and refuses writes that would
// double-book a teacher.
package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/classhour/classhour/engine"
	"github.com/classhour/classhour/modules/auth"
	"github.com/classhour/classhour/modules/roster"
	"github.com/classhour/classhour/modules/schedule"
)

type Config struct {
	HttpAddr string `envDefault:":8080"`
	Dir      string

	// Timezone is the canonical storage timezone: bare wall-clock timestamps
	// on the wire are interpreted in it.
	Timezone string `envDefault:"America/Los_Angeles"`

	// BufferMinutes of spacing enforced between back-to-back lessons.
	BufferMinutes int `envDefault:"5"`
}

func main() {
	conf, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "CLASSHOUR_", UseFieldNameByDefault: true})
	if err != nil {
		panic(err)
	}

	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		panic(err)
	}

	db, err := engine.OpenDB(filepath.Join(conf.Dir, "classhour.sqlite3"))
	if err != nil {
		panic(err)
	}

	a := engine.NewApp(conf.HttpAddr)

	authModule, err := auth.New(db, engine.NewTokenIssuer(filepath.Join(conf.Dir, "auth.pem")))
	if err != nil {
		panic(err)
	}
	a.Add(authModule)
	a.Router.Authenticator = authModule // IMPORTANT

	rosterModule := roster.New(db)
	a.Add(rosterModule)

	a.Add(schedule.New(db, a.Bus, schedule.Options{
		Location:      loc,
		BufferMinutes: conf.BufferMinutes,
		TeacherName:   rosterModule.LookupName,
	}))

	a.Run(context.TODO())
}
