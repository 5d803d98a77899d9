package router

import (
	"context"
	"runtime/debug"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "pricebot/internal/runtime/supervisor"
	kit "pricebot/internal/transport"
	logx "pricebot/pkg/logx"
)

// UnknownCommandText is sent for text that matches no command.
const UnknownCommandText = "Unable to handle the message. Type /help to see the usage."

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends text back to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// CommandManager routes chat commands to handlers.
type CommandManager struct {
	mu     sync.RWMutex
	cmds   map[string]*Command
	alias  map[string]*Command
	owners []int64

	log     logx.Logger
	adapter kit.Adapter
	timeout time.Duration
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, owners []int64) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CommandManager{
		cmds:    map[string]*Command{},
		alias:   map[string]*Command{},
		owners:  append([]int64(nil), owners...),
		log:     log,
		adapter: adapter,
		timeout: 30 * time.Second,
	}
}

// SetOwners replaces the owner list. Safe during hot reload.
func (m *CommandManager) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	m.mu.Lock()
	m.owners = cp
	m.mu.Unlock()
}

func (m *CommandManager) isOwner(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(m.owners, id)
}

// Register adds commands. A later command with the same name replaces an
// earlier one. A "help" command is always present.
func (m *CommandManager) Register(cmds ...Command) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		cc := c
		cc.Name = name
		m.cmds[name] = &cc
		for _, a := range c.Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				m.alias[a] = &cc
			}
		}
	}
	if _, ok := m.cmds["help"]; !ok {
		m.cmds["help"] = &Command{
			Name:        "help",
			Description: "display this text",
			Usage:       "/help",
			Handle: func(ctx context.Context, req *Request) error {
				return req.Reply(ctx, m.helpText(m.isOwner(req.FromID)))
			},
		}
	}
}

// Commands returns registered commands sorted by name.
func (m *CommandManager) Commands() []Command {
	m.mu.RLock()
	out := make([]Command, 0, len(m.cmds))
	for _, c := range m.cmds {
		out = append(out, *c)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *CommandManager) lookup(name string) *Command {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.cmds[name]; ok {
		return c
	}
	return m.alias[name]
}

// parseCommand splits "/cmd@bot arg1 arg2". ok is false for plain text.
func parseCommand(text string) (name string, args []string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	name = strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), fields[1:], true
}

// Dispatch handles one update synchronously.
func (m *CommandManager) Dispatch(ctx context.Context, up kit.Update) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return
	}
	msg := up.Message
	req := &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:  msg.FromID,
		Adapter: m.adapter,
	}
	name, args, ok := parseCommand(msg.Text)
	var cmd *Command
	if ok {
		cmd = m.lookup(name)
	}
	if cmd == nil {
		req.Command = name
		if err := req.Reply(ctx, UnknownCommandText); err != nil {
			m.log.Warn("reply failed", logx.Err(err))
		}
		return
	}
	req.Command, req.Args = cmd.Name, args
	req.Logger = m.log.With(logx.String("cmd", cmd.Name), logx.Int64("from_id", msg.FromID))

	if cmd.Access == AccessOwnerOnly && !m.isOwner(msg.FromID) {
		req.Logger.Warn("owner-only command denied")
		_ = req.Reply(ctx, "⛔ This command is restricted to the bot owner.")
		return
	}

	timeout := m.timeout
	if cmd.Timeout > 0 {
		timeout = cmd.Timeout
	}
	h := Chain(cmd.Handle, MWPanicRecover(m.log), MWRequestLog(m.log), MWTimeout(timeout))
	if err := h(ctx, req); err != nil {
		_ = req.Reply(ctx, "⚠️ "+err.Error())
	}
}

// DispatchLoop runs a bounded worker pool over updates until ctx is done or
// updates is closed.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update, workers int) error {
	if workers <= 0 {
		workers = 2
	}
	sup := rtsup.New(ctx, rtsup.WithLogger(m.log))
	m.log.Info("command dispatcher started", logx.Int("workers", workers))
	for i := 0; i < workers; i++ {
		sup.GoRestart("command.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case up, ok := <-updates:
					if !ok {
						return nil
					}
					m.safeDispatch(c, up)
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	<-ctx.Done()
	wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = sup.Stop(wctx)
	m.log.Info("command dispatcher stopped")
	return nil
}

func (m *CommandManager) safeDispatch(ctx context.Context, up kit.Update) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in command dispatch", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	m.Dispatch(ctx, up)
}
