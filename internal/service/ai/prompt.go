package ai

import (
	"fmt"
	"strings"
)

// PromptTemplate describes the assistant's standing instructions.
type PromptTemplate struct {
	Persona      string
	Hints        []string
	ContextRules []string
}

// DefaultPrompt is the travel assistant used by every live backend.
var DefaultPrompt = PromptTemplate{
	Persona: `Kamu adalah Jelajah, asisten perjalanan yang ramah untuk wisatawan di Indonesia. Kamu membantu merencanakan destinasi, penginapan, transportasi, kuliner dan anggaran.`,
	Hints: []string{
		"Jawab dalam bahasa yang dipakai pengguna; gunakan bahasa Indonesia bila ragu",
		"Berikan rekomendasi yang konkret: nama tempat, kisaran harga, waktu terbaik berkunjung",
		"Jaga jawaban tetap ringkas, maksimal beberapa paragraf pendek atau daftar poin",
	},
	ContextRules: []string{
		"Gunakan riwayat percakapan untuk menjaga konsistensi rencana perjalanan",
		"Jangan mengarang harga atau jadwal yang pasti; sebutkan bahwa angka bersifat perkiraan",
		"Tolak dengan sopan pertanyaan di luar topik perjalanan dan arahkan kembali",
	},
}

// System renders the template as a system instruction.
func (t PromptTemplate) System() string {
	var b strings.Builder
	b.WriteString(t.Persona)
	if len(t.Hints) > 0 {
		fmt.Fprintf(&b, "\n\nGaya menjawab:\n- %s", strings.Join(t.Hints, "\n- "))
	}
	if len(t.ContextRules) > 0 {
		fmt.Fprintf(&b, "\n\nAturan:\n- %s", strings.Join(t.ContextRules, "\n- "))
	}
	return b.String()
}
