// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

//go:build integration

package host_test

import (
	"os"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/loadstone/loadstone/internal/host"
)

var _ = Describe("Plugin lifecycle", func() {
	var env *testEnv

	BeforeEach(func() {
		env = newTestEnv(GinkgoT().TempDir())
	})

	AfterEach(func() {
		env.close()
	})

	It("runs a plugin from install through uninstall", func() {
		env.registry.publish("vendor.sample", "1.0.0")

		By("installing from the registry")
		Expect(env.host.InstallPlugin(env.ctx, "vendor.sample", "1.0.0")).To(Succeed())
		info, err := env.host.Get("vendor.sample")
		Expect(err).NotTo(HaveOccurred())
		Expect(info.State).To(Equal(host.StateInstalled))
		Expect(info.Version).To(Equal("1.0.0"))

		By("enabling and exchanging a message")
		Expect(env.host.Enable(env.ctx, "vendor.sample")).To(Succeed())
		reply, err := env.host.SendMessage(env.ctx, "vendor.sample", "ping", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(reply)).To(Equal("pong"))

		By("disabling and uninstalling")
		Expect(env.host.Disable(env.ctx, "vendor.sample")).To(Succeed())
		installPath := info.InstallPath
		Expect(env.host.Uninstall(env.ctx, "vendor.sample")).To(Succeed())
		Expect(env.host.List()).To(BeEmpty())
		if installPath != "" {
			_, statErr := os.Stat(installPath)
			Expect(os.IsNotExist(statErr)).To(BeTrue())
		}
	})

	It("updates an enabled plugin to a newer registry version", func() {
		env.registry.publish("vendor.sample", "1.0.0")
		Expect(env.host.InstallPlugin(env.ctx, "vendor.sample", "1.0.0")).To(Succeed())
		Expect(env.host.Enable(env.ctx, "vendor.sample")).To(Succeed())

		env.registry.publish("vendor.sample", "1.1.0")
		report, err := env.host.UpdateAll(env.ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Outcomes).To(HaveLen(1))
		Expect(report.Outcomes[0].Status).To(Equal(host.UpdateStatusUpdated))
		Expect(report.Outcomes[0].To).To(Equal("1.1.0"))

		info, err := env.host.Get("vendor.sample")
		Expect(err).NotTo(HaveOccurred())
		Expect(info.State).To(Equal(host.StateEnabled))
		Expect(info.Version).To(Equal("1.1.0"))
	})

	It("persists records across a host restart", func() {
		env.registry.publish("vendor.sample", "1.0.0")
		Expect(env.host.InstallPlugin(env.ctx, "vendor.sample", "1.0.0")).To(Succeed())
		Expect(env.host.Enable(env.ctx, "vendor.sample")).To(Succeed())

		env.reopen()

		info, err := env.host.Get("vendor.sample")
		Expect(err).NotTo(HaveOccurred())
		Expect(info.State).To(Equal(host.StateDisabled))
		Expect(info.Version).To(Equal("1.0.0"))

		By("re-enabling the restored record")
		Expect(env.host.Enable(env.ctx, "vendor.sample")).To(Succeed())
		reply, err := env.host.SendMessage(env.ctx, "vendor.sample", "ping", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(reply)).To(Equal("pong"))
	})

	It("rejects an install whose artifact fails verification", func() {
		env.registry.publish("vendor.sample", "1.0.0")
		env.registry.mu.Lock()
		env.registry.zips["vendor.sample"] = append(
			env.registry.zips["vendor.sample"], 0xFF)
		env.registry.mu.Unlock()

		Expect(env.host.InstallPlugin(env.ctx, "vendor.sample", "1.0.0")).NotTo(Succeed())
		Expect(env.host.List()).To(BeEmpty())
	})
})
