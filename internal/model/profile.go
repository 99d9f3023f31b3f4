package model

// NotificationSettings are the user's notification preferences.
type NotificationSettings struct {
	Enabled   bool `json:"enabled"`
	Sound     bool `json:"sound"`
	Vibration bool `json:"vibration"`
}

// DefaultNotificationSettings enables everything.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{Enabled: true, Sound: true, Vibration: true}
}

// Appointment is a doctor appointment kept on the profile.
type Appointment struct {
	ID         string `json:"id"`
	DoctorName string `json:"doctorName"`
	Date       string `json:"date"` // YYYY-MM-DD
	Time       string `json:"time"` // HH:MM
	Notes      string `json:"notes,omitempty"`
}

// UserProfile is the patient metadata plus appointments. The ledger is attached by the
// profile view, it is not stored with the profile.
type UserProfile struct {
	Name             string        `json:"name"`
	Age              int           `json:"age"`
	Email            string        `json:"email"`
	Phone            string        `json:"phone"`
	DoctorName       string        `json:"doctorName"`
	EmergencyContact string        `json:"emergencyContact"`
	Appointments     []Appointment `json:"appointments"`
}
