/*
 * Copyright (c) 2025, WSO2 LLC. (http://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package provider provides functionality for managing database connections and clients.
package provider

import (
	"database/sql"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/abdm-phr/phr/internal/system/config"
	"github.com/abdm-phr/phr/internal/system/database/client"
	"github.com/abdm-phr/phr/internal/system/database/model"
	"github.com/abdm-phr/phr/internal/system/log"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	dataSourceTypePostgres = "postgres"
	dataSourceTypeSQLite   = "sqlite"

	// SessionDB is the name of the database holding authenticated sessions.
	SessionDB = "session"
)

// dbConfig represents the resolved driver configuration of a data source.
type dbConfig struct {
	dsn        string
	driverName string
}

// DBProviderInterface defines the interface for getting database clients.
type DBProviderInterface interface {
	GetDBClient(dbName string) (client.DBClientInterface, error)
	Close() error
}

// DBProvider is the implementation of DBProviderInterface.
type DBProvider struct {
	sessionClient client.DBClientInterface
	sessionMutex  sync.Mutex
}

var (
	instance *DBProvider
	once     sync.Once
)

// GetDBProvider returns the instance of DBProvider.
func GetDBProvider() DBProviderInterface {
	once.Do(func() {
		instance = &DBProvider{}
	})
	return instance
}

// GetDBClient returns a database client based on the provided database name.
// The returned client manages its own connection pool and is closed with the provider.
func (d *DBProvider) GetDBClient(dbName string) (client.DBClientInterface, error) {
	switch dbName {
	case SessionDB:
		dataSource := config.GetRuntime().Config.Database.Session
		return d.getOrInitClient(&d.sessionClient, &d.sessionMutex, dataSource)
	default:
		return nil, fmt.Errorf("unsupported database name: %s", dbName)
	}
}

// Close closes all open database clients.
func (d *DBProvider) Close() error {
	d.sessionMutex.Lock()
	defer d.sessionMutex.Unlock()
	if d.sessionClient == nil {
		return nil
	}
	err := d.sessionClient.Close()
	d.sessionClient = nil
	if err != nil {
		return fmt.Errorf("failed to close %s client: %w", SessionDB, err)
	}
	log.GetLogger().Debug("Database connections closed successfully")
	return nil
}

// getOrInitClient gets or initializes a DB client with locking.
func (d *DBProvider) getOrInitClient(clientPtr *client.DBClientInterface, mutex *sync.Mutex,
	dataSource config.DataSource) (client.DBClientInterface, error) {
	mutex.Lock()
	defer mutex.Unlock()

	if *clientPtr != nil {
		return *clientPtr, nil
	}

	dbClient, err := openClient(dataSource)
	if err != nil {
		return nil, err
	}
	*clientPtr = dbClient
	return dbClient, nil
}

// openClient opens and verifies a connection pool for the data source.
func openClient(dataSource config.DataSource) (client.DBClientInterface, error) {
	cfg, err := getDBConfig(dataSource)
	if err != nil {
		return nil, err
	}
	dbName := dataSource.Name

	db, err := sql.Open(cfg.driverName, cfg.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database %s: %w", dbName, err)
	}

	if dataSource.MaxOpenConns > 0 {
		db.SetMaxOpenConns(dataSource.MaxOpenConns)
	}
	if dataSource.MaxIdleConns > 0 {
		db.SetMaxIdleConns(dataSource.MaxIdleConns)
	}
	if dataSource.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(dataSource.ConnMaxLifetime) * time.Second)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database %s: %w (close error: %w)", dbName, err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database %s: %w", dbName, err)
	}

	return client.NewDBClient(model.NewDB(db), cfg.driverName), nil
}

// getDBConfig returns the driver configuration based on the provided data source.
func getDBConfig(dataSource config.DataSource) (dbConfig, error) {
	switch dataSource.Type {
	case dataSourceTypePostgres:
		return dbConfig{
			driverName: dataSourceTypePostgres,
			dsn: fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
				dataSource.Hostname, dataSource.Port, dataSource.Username, dataSource.Password,
				dataSource.Name, dataSource.SSLMode),
		}, nil
	case dataSourceTypeSQLite:
		options := dataSource.Options
		if options != "" && options[0] != '?' {
			options = "?" + options
		}
		dbPath := dataSource.Path
		if !path.IsAbs(dbPath) {
			dbPath = path.Join(config.GetRuntime().PHRHome, dbPath)
		}
		return dbConfig{
			driverName: dataSourceTypeSQLite,
			dsn:        dbPath + options,
		}, nil
	default:
		return dbConfig{}, fmt.Errorf("unsupported data source type: %q", dataSource.Type)
	}
}
