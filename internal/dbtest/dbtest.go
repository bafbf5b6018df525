// Package dbtest opens migrated in-memory databases for package tests.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	flightdomain "github.com/smallbiznis/flightclub/internal/flight/domain"
	"github.com/smallbiznis/flightclub/internal/migration"
	ownerdomain "github.com/smallbiznis/flightclub/internal/owner/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var seq atomic.Int64

// Open returns a private in-memory database limited to one connection.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migration.AutoMigrate(db))
	return db
}

// Node returns a snowflake node for test ID generation.
func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

func CreateUser(t testing.TB, db *gorm.DB, id snowflake.ID, name string, active bool) ownerdomain.User {
	t.Helper()
	user := ownerdomain.User{ID: id, Name: name, Email: strings.ToLower(name) + "@example.org", Active: true, CreatedAt: time.Now().UTC()}
	require.NoError(t, db.Create(&user).Error)
	if !active {
		require.NoError(t, db.Model(&user).Update("active", false).Error)
		user.Active = false
	}
	return user
}

func CreateCostCenter(t testing.TB, db *gorm.DB, id snowflake.ID, name string, active bool) ownerdomain.CostCenter {
	t.Helper()
	cc := ownerdomain.CostCenter{ID: id, Name: name, Active: true, CreatedAt: time.Now().UTC()}
	require.NoError(t, db.Create(&cc).Error)
	if !active {
		require.NoError(t, db.Model(&cc).Update("active", false).Error)
		cc.Active = false
	}
	return cc
}

func CreateAircraft(t testing.TB, db *gorm.DB, id snowflake.ID, registration string, rate string, unit string) flightdomain.Aircraft {
	t.Helper()
	aircraft := flightdomain.Aircraft{ID: id, Registration: registration, BillingUnit: unit, CreatedAt: time.Now().UTC()}
	if rate != "" {
		aircraft.DefaultRate = decimal.NewNullDecimal(decimal.RequireFromString(rate))
	}
	require.NoError(t, db.Create(&aircraft).Error)
	return aircraft
}

// FlightOption adjusts a flight fixture before insert.
type FlightOption func(*flightdomain.Flight)

func WithCopilot(id snowflake.ID, pilotPercentage string) FlightOption {
	return func(f *flightdomain.Flight) {
		f.CopilotID = &id
		f.SplitCostWithCopilot = true
		if pilotPercentage != "" {
			f.PilotCostPercentage = decimal.NewNullDecimal(decimal.RequireFromString(pilotPercentage))
		}
	}
}

func WithCostCenter(id snowflake.ID) FlightOption {
	return func(f *flightdomain.Flight) {
		f.DefaultCostCenterID = &id
	}
}

func WithBoardReview() FlightOption {
	return func(f *flightdomain.Flight) {
		f.NeedsBoardReview = true
	}
}

// CreateFlight inserts an uncharged flight of the given airborne minutes.
func CreateFlight(t testing.TB, db *gorm.DB, id, aircraftID, pilotID snowflake.ID, takeoff time.Time, minutes int, opts ...FlightOption) flightdomain.Flight {
	t.Helper()
	takeoff = takeoff.UTC()
	landing := takeoff.Add(time.Duration(minutes) * time.Minute)
	blockOff := takeoff.Add(-10 * time.Minute)
	blockOn := landing.Add(5 * time.Minute)
	flight := flightdomain.Flight{
		ID:          id,
		AircraftID:  aircraftID,
		PilotID:     pilotID,
		BlockOffAt:  &blockOff,
		TakeoffAt:   &takeoff,
		LandingAt:   &landing,
		BlockOnAt:   &blockOn,
		Departure:   "EDDF",
		Destination: "EDDF",
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&flight)
	}
	require.NoError(t, db.Create(&flight).Error)
	return flight
}

// ReloadFlight reads the stored flight row.
func ReloadFlight(t testing.TB, db *gorm.DB, id snowflake.ID) flightdomain.Flight {
	t.Helper()
	var flight flightdomain.Flight
	require.NoError(t, db.First(&flight, "id = ?", id).Error)
	return flight
}
