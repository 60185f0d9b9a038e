package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

type PostgresInfo struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

func (pi PostgresInfo) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", pi.Host, pi.Port, pi.User, pi.Password, pi.Database)
}

var postgresDialect = dialect{
	name:     "postgres",
	numbered: true,
	isDuplicate: func(err error) bool {
		var pqErr *pq.Error
		return errors.As(err, &pqErr) && pqErr.Code == "23505"
	},
}

func NewPostgres(pgInfo PostgresInfo) (*SQL, error) {
	db, err := sql.Open("postgres", pgInfo.DSN())
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s, err := newSQL(db, postgresDialect, pgMigration)
	if err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}
