package initcmder_test

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	initcmder "github.com/papercomputeco/yui/cmd/yui/init"
	"github.com/papercomputeco/yui/pkg/config"
)

var _ = Describe("NewInitCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Use).To(Equal("init"))
	})

	It("rejects any arguments", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Args(cmd, []string{})).To(Succeed())
		Expect(cmd.Args(cmd, []string{"extra"})).NotTo(Succeed())
	})

	It("has a --preset flag", func() {
		cmd := initcmder.NewInitCmd()
		f := cmd.Flags().Lookup("preset")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal(""))
	})
})

var _ = Describe("Init command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "yui-init-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmpDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		os.RemoveAll(tmpDir)
	})

	execute := func(args ...string) error {
		cmd := initcmder.NewInitCmd()
		cmd.SetArgs(args)
		cmd.SetOut(GinkgoWriter)
		return cmd.Execute()
	}

	It("creates a .yui directory with a default config.toml", func() {
		Expect(execute()).To(Succeed())

		cfg := loadConfig(tmpDir)
		Expect(cfg.Version).To(Equal(config.CurrentV))
		Expect(cfg.Proxy.Provider).To(Equal("openai"))
		Expect(cfg.Proxy.Upstream).To(Equal("https://api.openai.com/v1"))
		Expect(cfg.Proxy.Listen).To(Equal(":8001"))
		Expect(cfg.API.Listen).To(Equal(":8002"))
	})

	It("does not overwrite an existing config without a preset", func() {
		dir := filepath.Join(tmpDir, ".yui")
		Expect(os.MkdirAll(dir, 0o755)).To(Succeed())
		path := filepath.Join(dir, "config.toml")
		Expect(os.WriteFile(path, []byte("version = 0\n[proxy]\nprovider = \"vllm\"\n"), 0o644)).To(Succeed())

		Expect(execute()).To(Succeed())

		Expect(loadConfig(tmpDir).Proxy.Provider).To(Equal("vllm"))
	})

	It("keeps other files in an existing .yui directory", func() {
		dir := filepath.Join(tmpDir, ".yui")
		Expect(os.MkdirAll(dir, 0o755)).To(Succeed())
		session := filepath.Join(dir, "session.json")
		Expect(os.WriteFile(session, []byte(`{"conversation_id":"c1"}`), 0o644)).To(Succeed())

		Expect(execute()).To(Succeed())

		data, err := os.ReadFile(session)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal(`{"conversation_id":"c1"}`))
	})

	Describe("--preset", func() {
		It("writes the deepseek preset", func() {
			Expect(execute("--preset", "deepseek")).To(Succeed())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Proxy.Upstream).To(Equal("https://api.deepseek.com/v1"))
			Expect(cfg.Client.Model).To(Equal("deepseek-reasoner"))
		})

		It("enables inline tags for vllm", func() {
			Expect(execute("--preset", "vllm")).To(Succeed())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Proxy.Upstream).To(Equal("http://127.0.0.1:8000/v1"))
			Expect(cfg.Reasoning.ForceTags).To(BeTrue())
		})

		It("replaces an existing config", func() {
			Expect(execute()).To(Succeed())
			Expect(execute("--preset", "sglang")).To(Succeed())

			Expect(loadConfig(tmpDir).Proxy.Upstream).To(Equal("http://127.0.0.1:30000/v1"))
		})

		It("rejects an unknown preset without creating anything", func() {
			err := execute("--preset", "nope")
			Expect(err).To(MatchError(ContainSubstring("unknown preset")))

			_, statErr := os.Stat(filepath.Join(tmpDir, ".yui"))
			Expect(os.IsNotExist(statErr)).To(BeTrue())
		})
	})
})

func loadConfig(dir string) *config.Config {
	data, err := os.ReadFile(filepath.Join(dir, ".yui", "config.toml"))
	Expect(err).NotTo(HaveOccurred())

	cfg := &config.Config{}
	Expect(toml.Unmarshal(data, cfg)).To(Succeed())
	return cfg
}
