// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

package aigw

// User is the requester identity handed to this subsystem by the authentication
// layer, which lives outside this repository. Only the fields the routing core
// needs are carried.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Admin bool   `json:"admin"`
}

// IsAdmin checks if the user has platform-level privileges
func (u *User) IsAdmin() bool {
	return u != nil && u.Admin
}
