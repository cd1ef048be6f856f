/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package events

// Secret event type constants.
const (
	SecretWrittenType = "secret.written"
	SecretDeletedType = "secret.deleted"
)

// SecretWritten is published after a record is written. Values are never
// carried on the event, only field names.
type SecretWritten struct {
	BaseEvent
	Session SessionInfo
	// Path is the namespace-relative key of the record
	Path string
	// Fields are the field names now present in the record
	Fields []string
}

// Type returns the event type identifier.
func (e SecretWritten) Type() string {
	return SecretWrittenType
}

// NewSecretWritten creates a SecretWritten event.
func NewSecretWritten(session SessionInfo, path string, fields []string) SecretWritten {
	return SecretWritten{
		BaseEvent: NewBaseEvent(SecretWrittenType),
		Session:   session,
		Path:      path,
		Fields:    fields,
	}
}

// SecretDeleted is published after a whole record is removed, including the
// case where deleting its last field emptied it.
type SecretDeleted struct {
	BaseEvent
	Session SessionInfo
	Path    string
}

// Type returns the event type identifier.
func (e SecretDeleted) Type() string {
	return SecretDeletedType
}

// NewSecretDeleted creates a SecretDeleted event.
func NewSecretDeleted(session SessionInfo, path string) SecretDeleted {
	return SecretDeleted{
		BaseEvent: NewBaseEvent(SecretDeletedType),
		Session:   session,
		Path:      path,
	}
}
