package ai

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/zhouzirui/jelajah/backend/internal/config"
	"github.com/zhouzirui/jelajah/backend/internal/model/chat"
)

// Topic names a reply bucket of the fallback backend.
type Topic string

const (
	TopicGreeting  Topic = "salam"
	TopicTourism   Topic = "wisata"
	TopicLodging   Topic = "hotel"
	TopicCulinary  Topic = "kuliner"
	TopicTransport Topic = "transportasi"
	TopicBudget    Topic = "budget"
	TopicGeneral   Topic = "umum"
)

// topicOrder breaks score ties.
var topicOrder = []Topic{TopicTourism, TopicLodging, TopicCulinary, TopicTransport, TopicBudget, TopicGreeting}

var topicKeywords = map[Topic][]string{
	TopicGreeting: {
		"halo", "hai", "hello", "hi ", "selamat pagi", "selamat siang", "selamat malam", "terima kasih", "makasih",
	},
	TopicTourism: {
		"wisata", "destinasi", "liburan", "pantai", "gunung", "pulau", "tempat", "jalan-jalan", "objek",
		"rekomendasi", "trip", "tour", "itinerary", "bali", "lombok", "raja ampat", "beach", "travel",
	},
	TopicLodging: {
		"hotel", "penginapan", "villa", "resort", "homestay", "hostel", "menginap", "kamar", "booking", "airbnb",
	},
	TopicCulinary: {
		"makan", "makanan", "kuliner", "restoran", "warung", "cafe", "kafe", "babi guling", "sate", "seafood", "food",
	},
	TopicTransport: {
		"transportasi", "pesawat", "tiket", "bandara", "kapal", "ferry", "sewa motor", "sewa mobil", "bus",
		"kereta", "ojek", "grab", "flight",
	},
	TopicBudget: {
		"budget", "biaya", "harga", "murah", "hemat", "mahal", "anggaran", "berapa", "rupiah", "juta", "cost",
	},
}

var topicReplies = map[Topic][]string{
	TopicGreeting: {
		"Halo! Saya Jelajah, asisten perjalananmu. Mau liburan ke mana kali ini?",
		"Hai! Ceritakan rencana perjalananmu, saya bantu susun destinasi, penginapan dan anggarannya.",
	},
	TopicTourism: {
		"Untuk wisata di Bali, coba mulai dari Ubud untuk sawah terasering Tegallalang, lalu lanjut ke Pura Uluwatu saat matahari terbenam dan Pantai Nusa Dua untuk bersantai.",
		"Bali punya banyak pilihan wisata: Kintamani dengan pemandangan Gunung Batur, Tanah Lot yang ikonik, serta Nusa Penida untuk pantai Kelingking yang terkenal.",
		"Kalau suka alam, Bali bagian utara seperti Munduk dan Danau Beratan cocok untuk suasana sejuk, sedangkan Seminyak dan Canggu pas untuk pantai dan kafe.",
	},
	TopicLodging: {
		"Untuk penginapan, area Ubud cocok untuk villa dengan suasana tenang, sedangkan Seminyak dan Kuta lebih dekat ke pantai dan hiburan malam.",
		"Pilihan penginapan hemat biasanya berupa homestay atau guesthouse mulai sekitar Rp200 ribu per malam, sementara resort berbintang bisa di atas Rp2 juta.",
	},
	TopicCulinary: {
		"Kuliner lokal yang wajib dicoba antara lain babi guling, ayam betutu, sate lilit dan nasi campur. Warung lokal biasanya lebih murah dan autentik.",
		"Untuk pengalaman kuliner, coba seafood bakar di Jimbaran saat sore hari atau kopi lokal di kafe-kafe sekitar Ubud.",
	},
	TopicTransport: {
		"Untuk berkeliling, sewa motor sekitar Rp70-100 ribu per hari adalah pilihan fleksibel; sewa mobil dengan sopir lebih nyaman untuk rombongan.",
		"Cek tiket pesawat beberapa minggu sebelumnya untuk harga terbaik, dan gunakan ferry atau fast boat untuk menyeberang antar pulau.",
	},
	TopicBudget: {
		"Sebagai gambaran, liburan hemat 3 hari 2 malam bisa sekitar Rp2-3 juta per orang di luar tiket pesawat. Angka ini perkiraan dan tergantung musim.",
		"Untuk menghemat biaya, pilih waktu di luar musim liburan, menginap di homestay dan makan di warung lokal.",
	},
	TopicGeneral: {
		"Terima kasih atas pertanyaannya! Saya bisa membantu soal destinasi wisata, penginapan, kuliner, transportasi dan perkiraan biaya perjalanan.",
		"Boleh ceritakan lebih detail rencana perjalananmu? Misalnya tujuan, durasi dan anggaran, supaya rekomendasinya lebih pas.",
	},
}

// FallbackBackend answers from fixed keyword buckets without any network call.
type FallbackBackend struct{}

// NewFallbackBackend returns the deterministic keyword backend.
func NewFallbackBackend() *FallbackBackend {
	return &FallbackBackend{}
}

func (b *FallbackBackend) Name() string { return config.ProviderFallback }

// Generate picks a reply from the best matching bucket. The choice is stable
// for the same message.
func (b *FallbackBackend) Generate(ctx context.Context, _ []chat.ContextMessage, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	replies := topicReplies[ClassifyTopic(message)]

	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(message))))
	return replies[int(h.Sum32()%uint32(len(replies)))], nil
}

// ClassifyTopic returns the bucket with the most keyword hits.
func ClassifyTopic(message string) Topic {
	text := " " + strings.ToLower(message) + " "

	best, bestScore := TopicGeneral, 0
	for _, topic := range topicOrder {
		score := 0
		for _, keyword := range topicKeywords[topic] {
			if strings.Contains(text, keyword) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = topic, score
		}
	}
	return best
}

// RepliesFor exposes a bucket's canned replies.
func RepliesFor(topic Topic) []string {
	return append([]string(nil), topicReplies[topic]...)
}
