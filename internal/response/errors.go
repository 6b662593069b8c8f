package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Exam access ───────────────────────────────────────────────────
	ErrExamNotAvailable   ErrCode = "EXAM_NOT_AVAILABLE"
	ErrNotRegistered      ErrCode = "NOT_REGISTERED"
	ErrAccessCodeInactive ErrCode = "ACCESS_CODE_INACTIVE"
	ErrPaymentRequired    ErrCode = "PAYMENT_REQUIRED"
	ErrInvalidAccessCode  ErrCode = "INVALID_ACCESS_CODE"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrSessionNotFound        ErrCode = "SESSION_NOT_FOUND"
	ErrSessionClosed          ErrCode = "SESSION_CLOSED"
	ErrInvalidPhase           ErrCode = "INVALID_PHASE_TRANSITION"
	ErrAcknowledgmentRequired ErrCode = "ACKNOWLEDGMENT_REQUIRED"
	ErrInvalidOption          ErrCode = "INVALID_OPTION"
	ErrIndexOutOfRange        ErrCode = "INDEX_OUT_OF_RANGE"
	ErrFinalizeInProgress     ErrCode = "FINALIZE_IN_PROGRESS"
	ErrReportSubmission       ErrCode = "REPORT_SUBMISSION_FAILED"
	ErrPersistenceWrite       ErrCode = "PERSISTENCE_WRITE_FAILED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrAdminAccessOnly:
		return "Sumber daya ini terbatas untuk administrator."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."

	// ─── Exam access ───────────────────────────────────────────────────
	case ErrExamNotAvailable:
		return "Ujian ini saat ini tidak tersedia."
	case ErrNotRegistered:
		return "Anda belum terdaftar pada ujian ini."
	case ErrAccessCodeInactive:
		return "Kode akses Anda untuk ujian ini tidak aktif."
	case ErrPaymentRequired:
		return "Pembayaran ujian belum diselesaikan."
	case ErrInvalidAccessCode:
		return "Kode akses ujian salah."

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrSessionNotFound:
		return "Sesi ujian belum dibuka."
	case ErrSessionClosed:
		return "Sesi ujian telah ditutup. Silakan buka kembali."
	case ErrInvalidPhase:
		return "Tindakan ini tidak diperbolehkan pada tahap ujian saat ini."
	case ErrAcknowledgmentRequired:
		return "Anda harus menyetujui petunjuk ujian terlebih dahulu."
	case ErrInvalidOption:
		return "Pilihan jawaban tidak tersedia untuk soal ini."
	case ErrIndexOutOfRange:
		return "Nomor soal tidak valid."
	case ErrFinalizeInProgress:
		return "Jawaban Anda sedang dikumpulkan."
	case ErrReportSubmission:
		return "Gagal menyimpan hasil ujian. Silakan coba kumpulkan lagi."
	case ErrPersistenceWrite:
		return "Gagal menyimpan progres ujian. Silakan coba lagi."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
