package models

// Profile is the user's display identity.
type Profile struct {
	Name  string `json:"name" yaml:"name" validate:"max=120"`
	Email string `json:"email" yaml:"email" validate:"omitempty,email"`
}

// MemoryRetention controls how conversation content is kept.
type MemoryRetention struct {
	AutoStore       bool   `json:"autoStore" yaml:"autoStore"`
	RetentionPeriod string `json:"retentionPeriod" yaml:"retentionPeriod" validate:"required"`
}

// UserSettings is the only durably persisted state.
type UserSettings struct {
	Profile         Profile         `json:"profile" yaml:"profile"`
	MemoryRetention MemoryRetention `json:"memoryRetention" yaml:"memoryRetention"`
}

// DefaultRetentionPeriod is the retention applied to a fresh account.
const DefaultRetentionPeriod = "indefinite-84"

func DefaultSettings() UserSettings {
	return UserSettings{
		MemoryRetention: MemoryRetention{
			AutoStore:       true,
			RetentionPeriod: DefaultRetentionPeriod,
		},
	}
}
