package model

// PaymentStatus enumerates the payment states of a registration.
type PaymentStatus string

const (
	PaymentNotRequired PaymentStatus = "NOT_REQUIRED"
	PaymentPending     PaymentStatus = "PENDING"
	PaymentCompleted   PaymentStatus = "COMPLETED"
	PaymentFailed      PaymentStatus = "FAILED"
)

// AccessStatus is the external access-check answer for a user and an exam.
type AccessStatus struct {
	IsRegistered    bool          `json:"is_registered"`
	AccessCodeValid bool          `json:"access_code_valid"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
}
