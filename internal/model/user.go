package model

import "time"

// User represents an application user record as stored in the
// `users` table. Accounts are created and updated exclusively by
// the GitHub OAuth callback (upsert keyed on the immutable
// github_id); this service never deletes them. The json tags are
// omitted because these structs are used internally by the
// repository layer; handlers define separate response types with
// appropriate JSON tags.
//
// Fields:
//  ID          – primary key identifier of the user.
//  GitHubID    – unique, immutable identifier at the provider.
//  Username    – provider login, updated on every callback.
//  Email       – primary email (nullable, unique when present).
//  DisplayName – profile name (nullable).
//  AvatarURL   – profile avatar (nullable).
//  CreatedAt   – timestamp of creation.
//  UpdatedAt   – timestamp of last update.
type User struct {
	ID          uint64    // users.id
	GitHubID    int64     // users.github_id
	Username    string    // users.username
	Email       *string   // users.email (nullable)
	DisplayName *string   // users.display_name (nullable)
	AvatarURL   *string   // users.avatar_url (nullable)
	CreatedAt   time.Time // users.created_at
	UpdatedAt   time.Time // users.updated_at
}
