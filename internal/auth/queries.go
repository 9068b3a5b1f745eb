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

package auth

import (
	"github.com/abdm-phr/phr/internal/system/database/model"
)

var (
	// QueryCreateSessionTokenTable creates the session token table when missing.
	QueryCreateSessionTokenTable = model.DBQuery{
		ID: "AUQ-SESSION_TOKEN-00",
		Query: "CREATE TABLE IF NOT EXISTS SESSION_TOKEN (" +
			"SESSION_ID VARCHAR(64) PRIMARY KEY, " +
			"ACCESS_TOKEN TEXT NOT NULL, " +
			"REFRESH_TOKEN TEXT, " +
			"UPDATED_AT TIMESTAMP DEFAULT CURRENT_TIMESTAMP)",
	}

	// QueryGetSessionToken retrieves the token pair of a session.
	QueryGetSessionToken = model.DBQuery{
		ID:          "AUQ-SESSION_TOKEN-01",
		Query:       "SELECT ACCESS_TOKEN, REFRESH_TOKEN FROM SESSION_TOKEN WHERE SESSION_ID = $1",
		SQLiteQuery: "SELECT ACCESS_TOKEN, REFRESH_TOKEN FROM SESSION_TOKEN WHERE SESSION_ID = ?",
	}

	// QueryUpsertSessionToken stores or replaces the token pair of a session.
	QueryUpsertSessionToken = model.DBQuery{
		ID: "AUQ-SESSION_TOKEN-02",
		Query: "INSERT INTO SESSION_TOKEN (SESSION_ID, ACCESS_TOKEN, REFRESH_TOKEN) VALUES ($1, $2, $3) " +
			"ON CONFLICT (SESSION_ID) DO UPDATE SET ACCESS_TOKEN = EXCLUDED.ACCESS_TOKEN, " +
			"REFRESH_TOKEN = EXCLUDED.REFRESH_TOKEN, UPDATED_AT = CURRENT_TIMESTAMP",
		SQLiteQuery: "INSERT INTO SESSION_TOKEN (SESSION_ID, ACCESS_TOKEN, REFRESH_TOKEN) VALUES (?, ?, ?) " +
			"ON CONFLICT (SESSION_ID) DO UPDATE SET ACCESS_TOKEN = EXCLUDED.ACCESS_TOKEN, " +
			"REFRESH_TOKEN = EXCLUDED.REFRESH_TOKEN, UPDATED_AT = CURRENT_TIMESTAMP",
	}

	// QueryDeleteSessionToken removes the token pair of a session.
	QueryDeleteSessionToken = model.DBQuery{
		ID:          "AUQ-SESSION_TOKEN-03",
		Query:       "DELETE FROM SESSION_TOKEN WHERE SESSION_ID = $1",
		SQLiteQuery: "DELETE FROM SESSION_TOKEN WHERE SESSION_ID = ?",
	}
)
