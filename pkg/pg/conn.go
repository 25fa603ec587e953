package pg

import (
	"database/sql"
	"fmt"
)

type Config struct {
	User         string `env:"USER"`
	Host         string `env:"HOST"`
	Port         string `env:"PORT"`
	Password     string `env:"PASSWORD"`
	Database     string `env:"DBNAME"`
	MaxOpenConns int    `env:"MAX_OPEN_CONNS"`
}

func (c Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC", c.Host, c.User, c.Password, c.Database, c.Port)
}

func newSqlConnection(config Config) (*sql.DB, error) {
	return sql.Open("postgres", config.DSN())
}
