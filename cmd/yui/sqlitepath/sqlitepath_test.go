package sqlitepath

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ResolveSQLitePath", func() {
	var (
		origHome string
		origCwd  string
	)

	BeforeEach(func() {
		origHome = os.Getenv("HOME")
		var err error
		origCwd, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.Setenv("HOME", origHome)).To(Succeed())
		Expect(os.Chdir(origCwd)).To(Succeed())
	})

	It("prefers an explicit path", func() {
		path, err := ResolveSQLitePath("/tmp/custom.db", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal("/tmp/custom.db"))
	})

	It("uses the config dir when given", func() {
		dir := filepath.Join(GinkgoT().TempDir(), "cfg")

		path, err := ResolveSQLitePath("", dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal(filepath.Join(dir, DefaultFileName)))

		info, err := os.Stat(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())
	})

	It("prefers a local .yui directory", func() {
		workDir := GinkgoT().TempDir()
		Expect(os.MkdirAll(filepath.Join(workDir, ".yui"), 0o755)).To(Succeed())
		Expect(os.Chdir(workDir)).To(Succeed())

		path, err := ResolveSQLitePath("", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(filepath.Base(filepath.Dir(path))).To(Equal(".yui"))
		Expect(filepath.Base(path)).To(Equal(DefaultFileName))
	})

	It("creates ~/.yui when nothing else exists", func() {
		homeDir := GinkgoT().TempDir()
		Expect(os.Setenv("HOME", homeDir)).To(Succeed())
		Expect(os.Chdir(GinkgoT().TempDir())).To(Succeed())

		path, err := ResolveSQLitePath("", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal(filepath.Join(homeDir, ".yui", DefaultFileName)))
	})
})
