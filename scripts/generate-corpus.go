//go:build ignore

// Command generate-corpus fills a knowledge tree with synthetic logistics
// artifacts for rebuild and query load testing.
//
// Usage: go run scripts/generate-corpus.go -artifacts 500 -output /tmp/knowledge
//
// The generated texts follow the shape of real depot regulations so chunking
// and retrieval behave like production, while the seed keeps runs
// reproducible. Point crossdock at the output dir and run 'crossdock rebuild'
// to measure indexing, or 'crossdock query' for retrieval latency.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

var (
	numArtifacts = flag.Int("artifacts", 500, "Total artifacts across all departments")
	outputDir    = flag.String("output", "testdata/knowledge", "Knowledge tree root to fill")
	seed         = flag.Int64("seed", 42, "Random seed for reproducibility")
	maxParas     = flag.Int("max-paras", 12, "Maximum paragraphs per artifact")
)

// departments mirrors the default roster. Weights skew volume toward the
// shared department, as in production trees.
var departments = []struct {
	slug   string
	weight int
}{
	{"common", 30},
	{"delivery/courier", 20},
	{"delivery/franchise", 10},
	{"sorting", 20},
	{"customer_service", 12},
	{"manager", 8},
}

var docKinds = []string{"регламент", "памятка", "инструкция", "приказ", "распоряжение"}

var topics = []string{
	"приёмки посылок", "выдачи заказов", "работы с наложенным платежом",
	"передачи смены", "инвентаризации склада", "оформления возвратов",
	"маркировки негабаритных отправлений", "работы с повреждённой упаковкой",
	"обслуживания очереди", "сверки кассы", "приёма претензий",
	"доставки в отдалённые зоны", "работы франчайзи-партнёров",
}

var sentences = []string{
	"Сканируйте штрихкод каждого отправления до перемещения на стеллаж.",
	"Повреждения упаковки фиксируются фотографией и актом в двух экземплярах.",
	"Наложенный платёж сдаётся старшему смены до %d:00.",
	"Заказы тяжелее %d кг выдаются только через грузовое окно.",
	"При расхождении данных сверка проводится повторно в присутствии руководителя.",
	"Претензия регистрируется в журнале не позднее %d часов с момента обращения.",
	"Возврат без чека оформляется по паспорту получателя.",
	"Зона %d обслуживается по чётным дням недели.",
	"Перед закрытием смены пересчитайте наличные и сверьте с отчётом кассы.",
	"Негабаритные отправления маркируются жёлтой лентой по периметру.",
	"Франчайзи отправляет отчёт о принятых посылках ежедневно до %d:30.",
	"Температурный режим склада поддерживается в диапазоне от %d до %d градусов.",
	"Доступ в зону сортировки разрешён только сотрудникам в сигнальных жилетах.",
	"Утерянное отправление объявляется в розыск через %d рабочих дней.",
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	total := 0
	for _, d := range departments {
		count := *numArtifacts * d.weight / 100
		dir := filepath.Join(*outputDir, filepath.FromSlash(d.slug))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "mkdir %s: %v\n", dir, err)
			os.Exit(1)
		}

		for i := 0; i < count; i++ {
			name := fmt.Sprintf("%s_%s_%03d", pick(rng, docKinds), translit(rng), i)
			ext := ".txt"
			if rng.Intn(5) == 0 {
				ext = ".md"
			}
			path := filepath.Join(dir, name+ext)
			if err := os.WriteFile(path, []byte(artifact(rng, ext == ".md")), 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
				os.Exit(1)
			}
			total++
		}
	}

	fmt.Printf("generated %d artifacts under %s (seed %d)\n", total, *outputDir, *seed)
}

// artifact renders one document: a title line and several paragraphs of
// operational sentences with randomized figures.
func artifact(rng *rand.Rand, markdown bool) string {
	title := fmt.Sprintf("%s %s", capitalizeKind(pick(rng, docKinds)), pick(rng, topics))
	if markdown {
		title = "# " + title
	}

	out := title + "\n\n"
	paras := 2 + rng.Intn(*maxParas)
	for p := 0; p < paras; p++ {
		lines := 1 + rng.Intn(4)
		for l := 0; l < lines; l++ {
			out += fill(rng, pick(rng, sentences)) + " "
		}
		out += "\n\n"
	}
	return out
}

// fill substitutes every %d verb with a plausible figure.
func fill(rng *rand.Rand, tmpl string) string {
	args := make([]any, 0, 3)
	for i := 0; i < countVerbs(tmpl); i++ {
		args = append(args, 2+rng.Intn(22))
	}
	return fmt.Sprintf(tmpl, args...)
}

func countVerbs(s string) int {
	n := 0
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '%' && s[i+1] == 'd' {
			n++
		}
	}
	return n
}

func pick(rng *rand.Rand, list []string) string {
	return list[rng.Intn(len(list))]
}

// translit yields a short latin identifier so file names sort stably on
// every filesystem the tree might be rsynced to.
func translit(rng *rand.Rand) string {
	syllables := []string{"pri", "vy", "da", "sor", "ti", "rov", "ka", "skla", "do", "ret", "urn"}
	out := ""
	for i := 0; i < 2+rng.Intn(2); i++ {
		out += syllables[rng.Intn(len(syllables))]
	}
	return out
}

func capitalizeKind(kind string) string {
	runes := []rune(kind)
	if len(runes) == 0 {
		return kind
	}
	// Cyrillic lowercase а..я sit 32 above uppercase А..Я.
	if runes[0] >= 'а' && runes[0] <= 'я' {
		runes[0] -= 32
	}
	return string(runes)
}
