// cmd/demo/main.go
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Corphon/StoryWriter/internal/models"
	"github.com/Corphon/StoryWriter/pkg/client"
)

type demoOptions struct {
	url      string
	username string
	password string
	askAI    bool
	language string
	timeout  time.Duration
}

func main() {
	opts := demoOptions{}
	cmd := &cobra.Command{
		Use:   "storywriter-demo",
		Short: "Walk one student through the writing flow against a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			return run(ctx, cmd.OutOrStdout(), cmd.InOrStdin(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.url, "url", "http://localhost:8080", "server base URL")
	cmd.Flags().StringVarP(&opts.username, "user", "u", "", "student username")
	cmd.Flags().StringVarP(&opts.password, "password", "p", "", "password (prompted when empty)")
	cmd.Flags().BoolVar(&opts.askAI, "ai", true, "ask the AI for help at each content stage")
	cmd.Flags().StringVar(&opts.language, "lang", "", "interface language, en or zh")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "overall timeout")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, in io.Reader, opts demoOptions) error {
	reader := bufio.NewReader(in)
	if opts.username == "" {
		opts.username = prompt(out, reader, "用户名")
	}
	if opts.password == "" {
		opts.password = prompt(out, reader, "密码")
	}

	c := client.New(opts.url)
	login, err := c.Login(ctx, opts.username, opts.password)
	if err != nil {
		return fmt.Errorf("登录失败: %w", err)
	}
	defer func() {
		if err := c.Logout(context.Background()); err != nil {
			fmt.Fprintf(out, "注销失败: %v\n", err)
		}
	}()
	fmt.Fprintf(out, "已登录: %s (%s, noAi=%v)\n", login.User.Username, login.User.Role, login.User.NoAI)

	view, err := c.Session(ctx)
	if err != nil {
		return err
	}
	if view.Stage == models.StageDashboard {
		fmt.Fprintln(out, "教师账号直接进入面板，演示流程仅适用于学生账号")
		return nil
	}
	if opts.language != "" {
		if view, err = c.SetLanguage(ctx, models.Language(opts.language)); err != nil {
			return fmt.Errorf("切换语言失败: %w", err)
		}
		fmt.Fprintf(out, "界面语言: %s\n", view.Language)
	}

	steps := []struct {
		label string
		next  func(feature string, conversation *string) (*client.View, error)
	}{
		{"开始", func(string, *string) (*client.View, error) { return c.Start(ctx) }},
		{"角色", func(feature string, conv *string) (*client.View, error) {
			name := suggest(ctx, out, c, opts, login.User.Username, feature, conv, "Suggest a name for a curious young explorer.", "Mira")
			return c.SubmitCharacter(ctx, models.Character{Name: firstLine(name), Age: 11, Traits: []string{"curious", "stubborn"}})
		}},
		{"情节", func(feature string, conv *string) (*client.View, error) {
			conflict := suggest(ctx, out, c, opts, login.User.Username, feature, conv, "Give one conflict for Mira in a floating city.", "The city is sinking")
			return c.SubmitPlot(ctx, models.Plot{Setting: "a floating city", Conflict: firstLine(conflict), Goal: "keep the city aloft"})
		}},
		{"结构", func(feature string, conv *string) (*client.View, error) {
			return c.SubmitStructure(ctx, models.Structure{
				Type:    models.StructureThreeAct,
				Outline: []string{"Mira notices the city dropping", "She searches for the old engine", "She restarts it at a cost"},
			})
		}},
		{"写作", func(feature string, conv *string) (*client.View, error) {
			story := suggest(ctx, out, c, opts, login.User.Username, feature, conv, "Write a three-sentence opening for Mira's story.", "Mira felt the floor tilt.")
			return c.SubmitStory(ctx, story)
		}},
	}

	var conversation string
	for _, step := range steps {
		next, err := step.next(view.Component.Feature, &conversation)
		if err != nil {
			return fmt.Errorf("%s阶段失败: %w", step.label, err)
		}
		view = next
		fmt.Fprintf(out, "→ %-10s 组件 %s\n", view.Stage, view.Component.Name)
	}

	fmt.Fprintf(out, "\n回顾\n角色: %s\n情节: %s / %s\n结构: %s\n\n%s\n",
		view.StoryState.Character.Name,
		view.StoryState.Plot.Setting, view.StoryState.Plot.Conflict,
		view.StoryState.Structure.Type,
		view.StoryState.Story)
	return nil
}

// suggest 调用 AI 获取建议，失败或未启用时使用默认文本
func suggest(ctx context.Context, out io.Writer, c *client.Client, opts demoOptions, user, feature string, conversation *string, message, fallback string) string {
	if !opts.askAI || feature == "" {
		return fallback
	}
	reply, err := c.Chat(ctx, models.ChatRequest{
		Message:        message,
		ConversationID: *conversation,
		UserID:         user,
		Feature:        feature,
	})
	if err != nil {
		fmt.Fprintf(out, "  AI 不可用 (%v)，使用默认内容\n", err)
		return fallback
	}
	if reply.ConversationID != "" {
		*conversation = reply.ConversationID
	}
	fmt.Fprintf(out, "  AI: %s\n", firstLine(reply.Answer))
	if strings.TrimSpace(reply.Answer) == "" {
		return fallback
	}
	return reply.Answer
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func prompt(out io.Writer, reader *bufio.Reader, label string) string {
	fmt.Fprintf(out, "%s: ", label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
