package dedupe

import "strings"

// nicknameGroups lists common given-name equivalences. The first entry of
// each group is the canonical form.
var nicknameGroups = [][]string{
	{"william", "bill", "billy", "will", "liam"},
	{"robert", "rob", "bob", "bobby", "bert"},
	{"richard", "rich", "rick", "dick"},
	{"john", "jon", "johnny", "jack"},
	{"jonathan", "jon", "jonny"},
	{"michael", "mike", "mickey"},
	{"james", "jim", "jimmy", "jamie"},
	{"joseph", "joe", "joey"},
	{"thomas", "tom", "tommy"},
	{"charles", "charlie", "chuck"},
	{"christopher", "chris", "topher"},
	{"daniel", "dan", "danny"},
	{"matthew", "matt"},
	{"anthony", "tony"},
	{"steven", "steve", "stephen"},
	{"edward", "ed", "eddie", "ted", "ned"},
	{"david", "dave", "davey"},
	{"andrew", "andy", "drew"},
	{"nicholas", "nick"},
	{"alexander", "alex", "sasha"},
	{"benjamin", "ben", "benny"},
	{"samuel", "sam", "sammy"},
	{"elizabeth", "liz", "beth", "lizzie", "eliza", "betsy"},
	{"margaret", "meg", "maggie", "peggy"},
	{"katherine", "kate", "katie", "kathy", "kat", "catherine"},
	{"jennifer", "jen", "jenny"},
	{"jessica", "jess", "jessie"},
	{"patricia", "pat", "patty", "tricia"},
	{"susan", "sue", "susie"},
	{"deborah", "deb", "debbie"},
	{"rebecca", "becky", "becca"},
	{"victoria", "vicky", "tori"},
	{"amanda", "mandy"},
	{"stephanie", "steph"},
}

// nicknameCanonical maps every known nickname to its canonical form.
var nicknameCanonical = func() map[string]string {
	m := make(map[string]string)
	for _, group := range nicknameGroups {
		canon := group[0]
		for _, name := range group {
			// First group wins for ambiguous nicknames ("jon").
			if _, ok := m[name]; !ok {
				m[name] = canon
			}
		}
	}
	return m
}()

// canonicalToken lowercases a name token and resolves nickname equivalences.
func canonicalToken(token string) string {
	t := strings.ToLower(strings.TrimSpace(token))
	if canon, ok := nicknameCanonical[t]; ok {
		return canon
	}
	return t
}
