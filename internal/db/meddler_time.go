package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/russross/meddler"
)

func init() {
	meddler.Register("utctime", UTCTimeMeddler{})
}

// UTCTimeMeddler converts between time.Time and the unix-seconds integer
// stored in the database. Times are always read back in UTC.
type UTCTimeMeddler struct{}

func (u UTCTimeMeddler) PreRead(fieldAddr interface{}) (scanTarget interface{}, err error) {
	return new(sql.NullInt64), nil
}

func (u UTCTimeMeddler) PostRead(fieldAddr, scanTarget interface{}) error {
	ni, ok := scanTarget.(*sql.NullInt64)
	if !ok {
		return fmt.Errorf("expected *sql.NullInt64, got %T", scanTarget)
	}

	ptr, ok := fieldAddr.(*time.Time)
	if !ok {
		return fmt.Errorf("expected *time.Time, got %T", fieldAddr)
	}

	if !ni.Valid {
		*ptr = time.Time{}
		return nil
	}
	*ptr = time.Unix(ni.Int64, 0).UTC()
	return nil
}

func (u UTCTimeMeddler) PreWrite(field interface{}) (saveValue interface{}, err error) {
	t, ok := field.(time.Time)
	if !ok {
		return nil, fmt.Errorf("expected time.Time, got %T", field)
	}
	return t.UTC().Unix(), nil
}
