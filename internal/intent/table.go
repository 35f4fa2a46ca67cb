package intent

import (
	"regexp"
	"sort"
	"strings"
)

// Intent identifiers recognized by the default table.
const (
	ReminderCreate     = "reminder.create"
	ReminderList       = "reminder.list"
	ReminderCancel     = "reminder.cancel"
	CategoryList       = "category.list"
	CategoryCreate     = "category.create"
	CategorySubscribe  = "category.subscribe"
	GameStart          = "game.start"
	GuildJoin          = "guild.join"
	GuildLeave         = "guild.leave"
	GuildList          = "guild.list"
	MeetingCreate      = "meeting.create"
	Help               = "help"
	Greeting           = "greeting"
	Thanks             = "thanks"
	ConversationCancel = "conversation.cancel"
	Unknown            = "unknown"
)

// DefaultLocale is used when a canned response has no entry for the
// requested locale.
const DefaultLocale = "en"

// Entry declares one intent: how it is recognized and how it behaves.
type Entry struct {
	Name string

	// Patterns are matched against normalized text. Named capture groups
	// become entities.
	Patterns []*regexp.Regexp

	// Synonyms are whole words that suggest the intent when no pattern
	// matches; such a match scores half the base confidence.
	Synonyms []string

	// Confidence is the score of a pattern match anywhere in the text.
	// Matches anchored at the start of the text get a small bonus.
	Confidence float64

	// Priority breaks ties between equally confident entries.
	Priority int

	// AddressOnly intents are small talk that only makes sense when the
	// bot is addressed directly, never on attentive follow-ups.
	AddressOnly bool

	// Interrupts marks top-level commands that abandon an open dialogue.
	Interrupts bool

	// Canned maps locale to a reply that short-circuits routing.
	Canned map[string]string
}

// Table is an immutable, ordered set of entries.
type Table struct {
	entries []Entry
	byName  map[string]int
}

// NewTable builds a table. Entries are evaluated by descending priority.
func NewTable(entries ...Entry) *Table {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	t := &Table{entries: sorted, byName: make(map[string]int, len(sorted))}
	for i, e := range sorted {
		t.byName[e.Name] = i
	}
	return t
}

// Lookup returns the entry for name.
func (t *Table) Lookup(name string) (Entry, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Entry{}, false
	}
	return t.entries[i], true
}

// Names lists every intent in the table.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		names = append(names, e.Name)
	}
	return names
}

// Match scores normalized text against every entry and returns the best.
// Text that matches nothing yields the Unknown intent with zero confidence.
func (t *Table) Match(normalized string) Result {
	best := Result{Intent: Unknown}
	bestPriority := 0
	words := wordSet(normalized)

	for _, e := range t.entries {
		score, matched, entities := e.score(normalized, words)
		if score <= 0 {
			continue
		}
		if score > best.Confidence || (score == best.Confidence && e.Priority > bestPriority) {
			best = Result{Intent: e.Name, Confidence: score, Matched: matched, Entities: entities}
			bestPriority = e.Priority
		}
	}
	return best
}

// score reports whether one of the patterns matched, as opposed to a
// synonym.
func (e Entry) score(text string, words map[string]struct{}) (float64, bool, map[string]string) {
	for _, re := range e.Patterns {
		loc := re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		score := e.Confidence
		if loc[0] == 0 {
			score += anchorBonus
		}
		if score > 1 {
			score = 1
		}
		return score, true, captureEntities(re, text, loc)
	}

	for _, s := range e.Synonyms {
		if _, ok := words[s]; ok {
			return e.Confidence * synonymWeight, false, nil
		}
	}
	return 0, false, nil
}

const (
	anchorBonus   = 0.1
	synonymWeight = 0.5
)

func captureEntities(re *regexp.Regexp, text string, loc []int) map[string]string {
	var entities map[string]string
	for i, name := range re.SubexpNames() {
		if name == "" || loc[2*i] < 0 {
			continue
		}
		value := strings.TrimSpace(text[loc[2*i]:loc[2*i+1]])
		if value == "" {
			continue
		}
		if entities == nil {
			entities = make(map[string]string)
		}
		entities[name] = value
	}
	return entities
}

func wordSet(text string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(text) {
		words[strings.Trim(w, ".,!?;:'\"")] = struct{}{}
	}
	return words
}

func patterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, expr := range exprs {
		out[i] = regexp.MustCompile(expr)
	}
	return out
}

// DefaultTable is the built-in intent table.
func DefaultTable() *Table {
	return NewTable(
		Entry{
			Name: ConversationCancel,
			Patterns: patterns(
				`^(?:cancel|stop|never\s*mind|forget\s+it|abort|cancelar|esquece)$`,
			),
			Confidence: 0.95,
			Priority:   100,
		},
		Entry{
			Name: ReminderCancel,
			Patterns: patterns(
				`\b(?:cancel|delete|remove)\s+(?:my\s+|the\s+)?reminder\s*#?(?P<reminder_id>\d+)?`,
				`\b(?:cancelar|apagar)\s+(?:o\s+)?lembrete\s*#?(?P<reminder_id>\d+)?`,
			),
			Confidence: 0.9,
			Priority:   90,
			Interrupts: true,
		},
		Entry{
			Name: ReminderList,
			Patterns: patterns(
				`\b(?:list|show|see|view)\s+(?:me\s+)?(?:all\s+)?(?:my\s+|the\s+)?reminders\b`,
				`\bwhat\s+(?:are\s+)?my\s+reminders\b`,
				`^(?:my\s+)?reminders$`,
				`\b(?:meus\s+lembretes|listar\s+lembretes)\b`,
			),
			Confidence: 0.9,
			Priority:   80,
			Interrupts: true,
		},
		Entry{
			Name: ReminderCreate,
			Patterns: patterns(
				`^(?:please\s+)?(?:can\s+you\s+)?remind\s+(?:me|us|everyone|here|@?[\w.]+)\b`,
				`\bset\s+(?:up\s+)?(?:a\s+)?reminder\b`,
				`\b(?:create|add|new)\s+(?:a\s+)?reminder\b`,
				`\bdon'?t\s+let\s+me\s+forget\b`,
				`^(?:me\s+)?lembr(?:e|a|ar)\b`,
			),
			Synonyms:   []string{"remind", "reminder", "lembrete"},
			Confidence: 0.85,
			Priority:   70,
			Interrupts: true,
		},
		Entry{
			Name: MeetingCreate,
			Patterns: patterns(
				`\b(?:schedule|set\s+up|book|plan|organize)\s+(?:a\s+|an\s+|the\s+|our\s+)?(?P<meeting_type>stand-?up|sync|retro(?:spective)?|one-on-one|1:1|planning|review|call|meeting)\b`,
				`\b(?:marcar|agendar)\s+(?:uma\s+)?(?P<meeting_type>reuni[aã]o|call|daily)\b`,
			),
			Synonyms:   []string{"meeting", "standup", "reunião"},
			Confidence: 0.8,
			Priority:   65,
			Interrupts: true,
		},
		Entry{
			Name: CategoryCreate,
			Patterns: patterns(
				`\b(?:create|add|new)\s+(?:a\s+)?category\s+(?P<emoji>\S+)\s+(?P<name>.+)$`,
				`\b(?:criar|nova)\s+categoria\s+(?P<emoji>\S+)\s+(?P<name>.+)$`,
			),
			Confidence: 0.9,
			Priority:   60,
			Interrupts: true,
		},
		Entry{
			Name: CategorySubscribe,
			Patterns: patterns(
				`\bsubscribe\s+(?:me\s+)?(?:to\s+)?(?:the\s+)?(?P<category>\S+)`,
				`\b(?:inscrever|assinar)\s+(?:em\s+|na\s+)?(?P<category>\S+)`,
			),
			Confidence: 0.85,
			Priority:   55,
			Interrupts: true,
		},
		Entry{
			Name: CategoryList,
			Patterns: patterns(
				`\b(?:list|show|see)\s+(?:me\s+)?(?:all\s+)?(?:the\s+)?categories\b`,
				`^categories$`,
				`\bcategorias\b`,
			),
			Synonyms:   []string{"categories", "category"},
			Confidence: 0.85,
			Priority:   50,
			Interrupts: true,
		},
		Entry{
			Name: GameStart,
			Patterns: patterns(
				`\b(?:let'?s\s+)?(?:play|start)\s+(?:a\s+)?(?:game\s+of\s+|round\s+of\s+)?(?P<game_type>trivia|hangman|wordle|quiz|riddles?)\b`,
				`\b(?:let'?s\s+)?(?:play|start)\s+(?:a\s+)?game\b`,
				`\b(?:jogar|vamos\s+jogar)\b`,
			),
			Synonyms:   []string{"trivia", "hangman", "game"},
			Confidence: 0.85,
			Priority:   45,
			Interrupts: true,
		},
		Entry{
			Name: GuildLeave,
			Patterns: patterns(
				`\bleave\s+(?:the\s+|my\s+)?guild\b(?:\s+(?P<guild>.+))?`,
				`\bsair\s+d[ao]\s+guild(?:a)?\b(?:\s+(?P<guild>.+))?`,
			),
			Confidence: 0.9,
			Priority:   42,
			Interrupts: true,
		},
		Entry{
			Name: GuildJoin,
			Patterns: patterns(
				`\bjoin\s+(?:the\s+)?guild\s+(?P<guild>.+)$`,
				`\bentrar\s+n[ao]\s+guild(?:a)?\s+(?P<guild>.+)$`,
			),
			Confidence: 0.9,
			Priority:   41,
			Interrupts: true,
		},
		Entry{
			Name: GuildList,
			Patterns: patterns(
				`\b(?:list|show|see)\s+(?:me\s+)?(?:all\s+)?(?:the\s+)?guilds\b`,
				`^guilds$`,
			),
			Synonyms:   []string{"guilds", "guild"},
			Confidence: 0.85,
			Priority:   40,
			Interrupts: true,
		},
		Entry{
			Name: Help,
			Patterns: patterns(
				`^(?:help|commands|ajuda|\?)$`,
				`\bwhat\s+can\s+you\s+do\b`,
				`\bhow\s+do\s+(?:i|you)\s+use\s+(?:you|this)\b`,
				`\bo\s+que\s+voc[eê]\s+faz\b`,
			),
			Synonyms:   []string{"help"},
			Confidence: 0.9,
			Priority:   30,
			Interrupts: true,
			Canned: map[string]string{
				"en": "I can help with:\n" +
					"• reminders: \"remind me to call John tomorrow at 3pm\", \"list my reminders\", \"cancel reminder 4\"\n" +
					"• categories: \"show categories\", \"create category 🏋️ gym\", \"subscribe to 🏋️\"\n" +
					"• meetings: \"schedule a standup every weekday at 9am\"\n" +
					"• games: \"let's play trivia\"\n" +
					"• guilds: \"join guild Night Owls\", \"list guilds\"\n" +
					"Say \"cancel\" any time to drop what we're doing.",
				"pt": "Posso ajudar com:\n" +
					"• lembretes: \"me lembre de ligar para o João amanhã às 15h\", \"meus lembretes\"\n" +
					"• categorias: \"categorias\", \"criar categoria 🏋️ academia\"\n" +
					"• jogos: \"vamos jogar\"\n" +
					"Diga \"cancelar\" a qualquer momento.",
			},
		},
		Entry{
			Name: Greeting,
			Patterns: patterns(
				`^(?:hi|hello|hey|hiya|howdy|yo|good\s+(?:morning|afternoon|evening))(?:\s+there)?$`,
				`^(?:ol[aá]|oi|bom\s+dia|boa\s+tarde|boa\s+noite)$`,
			),
			Confidence:  0.9,
			Priority:    20,
			AddressOnly: true,
			Canned: map[string]string{
				"en": "Hi! What can I do for you?",
				"pt": "Oi! Como posso ajudar?",
			},
		},
		Entry{
			Name: Thanks,
			Patterns: patterns(
				`^(?:thanks|thank\s+you|thx|ty|cheers|much\s+appreciated)\b`,
				`^(?:obrigad[oa]|valeu)\b`,
			),
			Confidence:  0.9,
			Priority:    10,
			AddressOnly: true,
			Canned: map[string]string{
				"en": "You're welcome!",
				"pt": "De nada!",
			},
		},
	)
}
