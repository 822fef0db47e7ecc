package suggestion

import "strings"

// Category 表示建议所属的话题分类。
type Category string

const (
	General       Category = "general"
	Destination   Category = "destination"
	Accommodation Category = "accommodation"
	Budget        Category = "budget"
	Transport     Category = "transport"
	Culinary      Category = "culinary"
)

// MaxSuggestions 是单次返回的建议上限。
const MaxSuggestions = 4

// Result 给出分类结果及对应的后续提问建议。
type Result struct {
	Category    Category
	Score       int
	Suggestions []string
}

// 分数相同时按此顺序取第一个。
var categoryOrder = []Category{Destination, Accommodation, Budget, Transport, Culinary}

var keywordBuckets = map[Category][]string{
	Destination: {
		"wisata", "destinasi", "pantai", "gunung", "pulau", "pura", "danau", "air terjun", "liburan",
		"tempat", "objek", "bali", "lombok", "ubud", "nusa", "yogyakarta", "labuan bajo", "beach", "island",
	},
	Accommodation: {
		"hotel", "penginapan", "villa", "resort", "homestay", "hostel", "guesthouse", "menginap", "kamar",
		"check-in", "airbnb", "booking",
	},
	Budget: {
		"budget", "biaya", "harga", "murah", "hemat", "mahal", "anggaran", "rupiah", "juta", "ribu",
		"diskon", "promo", "cost", "price",
	},
	Transport: {
		"transportasi", "pesawat", "tiket", "bandara", "kapal", "ferry", "fast boat", "sewa motor", "sewa mobil",
		"bus", "kereta", "ojek", "grab", "flight", "sopir",
	},
	Culinary: {
		"makan", "kuliner", "restoran", "warung", "kafe", "cafe", "babi guling", "ayam betutu", "sate",
		"seafood", "kopi", "jajanan", "food",
	},
}

var prompts = map[Category][]string{
	General: {
		"Rekomendasi destinasi wisata populer",
		"Tips merencanakan liburan hemat",
		"Penginapan yang nyaman untuk keluarga",
		"Kuliner khas yang wajib dicoba",
	},
	Destination: {
		"Apa saja tempat wisata terdekat?",
		"Kapan waktu terbaik untuk berkunjung?",
		"Buatkan itinerary 3 hari",
		"Aktivitas apa yang cocok untuk keluarga?",
	},
	Accommodation: {
		"Rekomendasi hotel dengan harga terjangkau",
		"Area mana yang paling strategis untuk menginap?",
		"Villa dengan kolam renang pribadi",
		"Homestay yang dekat pusat kota",
	},
	Budget: {
		"Berapa perkiraan total biaya perjalanan?",
		"Tips hemat selama liburan",
		"Kapan musim tiket promo?",
		"Rincian anggaran harian",
	},
	Transport: {
		"Cara terbaik berkeliling di sana",
		"Berapa harga sewa motor per hari?",
		"Rute dari bandara ke penginapan",
		"Jadwal kapal ke pulau terdekat",
	},
	Culinary: {
		"Makanan khas apa yang wajib dicoba?",
		"Rekomendasi restoran dengan pemandangan bagus",
		"Tempat kuliner malam yang ramai",
		"Oleh-oleh khas yang bisa dibawa pulang",
	},
}

// Analyze 根据最近一轮对话文本给出建议。优先使用 primary，
// primary 无明显话题时再参考 secondary，两者都无命中时返回通用建议。
func Analyze(primary, secondary string) Result {
	result := score(primary)
	if result.Score == 0 {
		result = score(secondary)
	}
	result.Suggestions = For(result.Category)
	return result
}

// Defaults 返回通用建议。
func Defaults() []string {
	return For(General)
}

// For 返回某个分类的建议副本。
func For(category Category) []string {
	list, ok := prompts[category]
	if !ok {
		list = prompts[General]
	}
	if len(list) > MaxSuggestions {
		list = list[:MaxSuggestions]
	}
	return append([]string(nil), list...)
}

func score(text string) Result {
	normalized := " " + strings.TrimSpace(strings.ToLower(text)) + " "
	if strings.TrimSpace(normalized) == "" {
		return Result{Category: General}
	}

	best := Result{Category: General}
	for _, category := range categoryOrder {
		points := 0
		for _, word := range keywordBuckets[category] {
			if strings.Contains(normalized, word) {
				points += 3
			}
		}
		if points > best.Score {
			best = Result{Category: category, Score: points}
		}
	}
	return best
}
