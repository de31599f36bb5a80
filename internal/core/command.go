package core

// Command - идентификатор зарегистрированной команды.
type Command int

const (
	CmdHelp Command = iota + 1
	CmdIntel
	CmdCrypto
	CmdVerify
	CmdAgents
	CmdStatus
	CmdClear
)

// Имена шаблонов аналитических команд.
const (
	TemplateDailyEcosystem = "daily-ecosystem-analysis"
	TemplateProjectSpot    = "project-spotlight"
	TemplateVCIntelligence = "vc-intelligence-report"
	TemplateGithubUpdates  = "github-updates-daily"
)

var commandNames = [...]string{
	CmdHelp:   "help",
	CmdIntel:  "intel",
	CmdCrypto: "crypto",
	CmdVerify: "verify",
	CmdAgents: "agents",
	CmdStatus: "status",
	CmdClear:  "clear",
}

var commandTemplates = map[Command]string{
	CmdIntel:  TemplateDailyEcosystem,
	CmdCrypto: TemplateProjectSpot,
	CmdVerify: TemplateVCIntelligence,
	CmdAgents: TemplateGithubUpdates,
}

var commandsByName = func() map[string]Command {
	m := make(map[string]Command, len(commandNames))
	for _, c := range Commands() {
		m[commandNames[c]] = c
	}
	return m
}()

// Commands возвращает все команды в порядке регистрации.
func Commands() []Command {
	return []Command{CmdHelp, CmdIntel, CmdCrypto, CmdVerify, CmdAgents, CmdStatus, CmdClear}
}

// ParseCommand ищет команду по точному совпадению имени.
func ParseCommand(name string) (Command, bool) {
	c, ok := commandsByName[name]
	return c, ok
}

func (c Command) String() string {
	if c <= 0 || int(c) >= len(commandNames) {
		return "unknown"
	}
	return commandNames[c]
}

// Template возвращает имя шаблона для аналитических команд.
func (c Command) Template() (string, bool) {
	name, ok := commandTemplates[c]
	return name, ok
}
