package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/yui/cmd/yui/config"
	"github.com/papercomputeco/yui/pkg/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		cmds := cmd.Commands()
		subcommands := make([]string, 0, len(cmds))
		for _, sub := range cmds {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "yui-config-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		// A local .yui dir keeps the commands away from ~/.yui
		Expect(os.MkdirAll(filepath.Join(tmpDir, ".yui"), 0o755)).To(Succeed())
		Expect(os.Chdir(tmpDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		os.RemoveAll(tmpDir)
	})

	execute := func(args ...string) (string, error) {
		out := &bytes.Buffer{}
		cmd := configcmder.NewConfigCmd()
		cmd.SetArgs(args)
		cmd.SetOut(out)
		cmd.SetErr(GinkgoWriter)
		err := cmd.Execute()
		return out.String(), err
	}

	Describe("set subcommand", func() {
		It("writes the value to config.toml", func() {
			_, err := execute("set", "proxy.upstream", "http://127.0.0.1:8000/v1")
			Expect(err).NotTo(HaveOccurred())

			data, err := os.ReadFile(filepath.Join(tmpDir, ".yui", "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			cfg, err := config.ParseConfigTOML(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Proxy.Upstream).To(Equal("http://127.0.0.1:8000/v1"))
		})

		It("rejects unknown keys", func() {
			_, err := execute("set", "invalid_key", "value")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("requires exactly two arguments", func() {
			_, err := execute("set", "proxy.provider")
			Expect(err).To(HaveOccurred())

			_, err = execute("set")
			Expect(err).To(HaveOccurred())
		})

		It("rejects invalid values", func() {
			_, err := execute("set", "proxy.timeout", "not-a-number")
			Expect(err).To(HaveOccurred())

			_, err = execute("set", "proxy.mode", "staging")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("get subcommand", func() {
		It("gets a previously set value", func() {
			_, err := execute("set", "client.model", "deepseek-reasoner")
			Expect(err).NotTo(HaveOccurred())

			out, err := execute("get", "client.model")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("deepseek-reasoner"))
		})

		It("masks secrets", func() {
			_, err := execute("set", "proxy.api_key", "sk-secret1234")
			Expect(err).NotTo(HaveOccurred())

			out, err := execute("get", "proxy.api_key")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("****1234"))
			Expect(out).NotTo(ContainSubstring("sk-secret"))
		})

		It("rejects unknown keys", func() {
			_, err := execute("get", "invalid_key")
			Expect(err).To(HaveOccurred())
		})

		It("requires exactly one argument", func() {
			_, err := execute("get")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("list subcommand", func() {
		It("lists every key", func() {
			out, err := execute("list")
			Expect(err).NotTo(HaveOccurred())
			for _, key := range config.ValidConfigKeys() {
				Expect(out).To(ContainSubstring(key))
			}
		})

		It("shows set values", func() {
			_, err := execute("set", "eventstream.kafka_topic", "chat.events")
			Expect(err).NotTo(HaveOccurred())

			out, err := execute("list")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("chat.events"))
		})

		It("rejects any arguments", func() {
			_, err := execute("list", "extra")
			Expect(err).To(HaveOccurred())
		})
	})
})
