package data

import (
	"errors"

	"github.com/gridx-network/gridx-coordinator/db"
)

var (
	ErrRecordNotFound          = errors.New("record not found")
	ErrRecordAlreadyExists     = errors.New("record already exists")
	ErrMismatchNumRowsAffected = errors.New("mismatch number of rows affected")
	ErrMissingInput            = errors.New("missing input")
)

type Models struct {
	Jobs             *JobModel
	Workers          *WorkerModel
	Credits          *CreditsModel
	UserAuth         *UserAuthModel
	DBConnectionPool db.DBConnectionPool
}

func NewModels(dbConnectionPool db.DBConnectionPool) (*Models, error) {
	if dbConnectionPool == nil {
		return nil, errors.New("dbConnectionPool is required for NewModels")
	}
	return &Models{
		Jobs:             &JobModel{dbConnectionPool: dbConnectionPool},
		Workers:          &WorkerModel{dbConnectionPool: dbConnectionPool},
		Credits:          &CreditsModel{dbConnectionPool: dbConnectionPool},
		UserAuth:         &UserAuthModel{dbConnectionPool: dbConnectionPool},
		DBConnectionPool: dbConnectionPool,
	}, nil
}
