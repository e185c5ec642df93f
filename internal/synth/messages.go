// Package synth 负责回答合成：LLM 提示词构建、无 LLM 时的模板回答、
// 以及对输出的清理与长度限制。
package synth

// 固定回复文案，均为非空字符串。
const (
	NotFoundMessage    = "Maaf, saya tidak menemukan informasi yang relevan dengan pertanyaan Anda dalam dokumen ini. Silakan coba dengan kata kunci yang berbeda atau lebih spesifik."
	NoContentMessage   = "Maaf, saya tidak memiliki akses ke konten dokumen untuk menjawab pertanyaan Anda."
	UnavailableMessage = "Maaf, layanan AI sedang tidak tersedia. Silakan coba lagi beberapa saat lagi."
	SessionLostMessage = "Sesi tidak ditemukan atau sudah kedaluwarsa. Silakan unggah ulang dokumen Anda."
)
