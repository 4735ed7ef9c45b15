package appraisal

import (
	"fmt"
	"strings"
)

const SchemaName = "merch_appraisal"

// SystemPrompt frames the model as an authentication and duplicate-detection expert.
const SystemPrompt = "ROLE: Pakar Autentikasi Merchandise Anime & Detektif Duplikasi. Jawab hanya dengan JSON sesuai skema."

// Prompt builds the per-request instruction. Image 1 is the candidate, the rest are history.
func Prompt(characterName string, historyCount int) string {
	name := strings.TrimSpace(characterName)
	if name == "" {
		name = "karakter ini"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "KONTEKS:\n")
	fmt.Fprintf(&b, "- GAMBAR 1: Foto merchandise baru yang sedang diperiksa (CANDIDATE).\n")
	fmt.Fprintf(&b, "- GAMBAR 2 dst: Adalah data history koleksi user (%d foto).\n", historyCount)
	fmt.Fprintf(&b, "- NAMA KARAKTER: %q.\n\n", name)
	b.WriteString("TUGAS ANDA (WAJIB PATUH):\n")
	b.WriteString("1. AUTENTIKASI (Hanya Gambar 1):\n")
	b.WriteString("   - Apakah ini foto layar (monitor/HP)? -> REJECT.\n")
	b.WriteString("   - Apakah ini stok foto internet (background putih polos/watermark)? -> REJECT.\n")
	fmt.Fprintf(&b, "   - Apakah benar karakter %q? -> Jika salah, REJECT.\n", name)
	b.WriteString("2. DETEKSI DUPLIKAT:\n")
	b.WriteString("   - JIKA JUMLAH GAMBAR HISTORY ADALAH 0: \"is_duplicate\" HARUS false dan \"similarity_score\" HARUS 0.\n")
	b.WriteString("   - JIKA ADA GAMBAR HISTORY: Bandingkan Gambar 1 dengan semua gambar history.\n")
	b.WriteString("   - Duplikat terjadi jika objeknya sama, pose sama, sudut foto sama, atau pencahayaan identik.\n")
	b.WriteString("   - \"similarity_score\" 0-100. Jika > 85, anggap duplikat.\n")
	b.WriteString("3. VALUASI:\n")
	b.WriteString("   - Estimasi harga barang dalam Rupiah (IDR).\n")
	b.WriteString("   - \"reject_reason\" dalam Bahasa Indonesia, kosongkan jika valid.\n")
	return b.String()
}

// Schema is the strict JSON schema for the verdict.
func Schema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required": []string{
			"valid", "reject_reason", "similarity_score", "is_duplicate", "total_value_idr", "items_detected",
		},
		"properties": map[string]any{
			"valid":            map[string]any{"type": "boolean"},
			"reject_reason":    map[string]any{"type": "string"},
			"similarity_score": map[string]any{"type": "number"},
			"is_duplicate":     map[string]any{"type": "boolean"},
			"total_value_idr":  map[string]any{"type": "number"},
			"items_detected": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
	}
}
