package integration

import (
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/buun-ch/buun-stack/pkg/config"
	"github.com/buun-ch/buun-stack/pkg/secretstore"
	"github.com/buun-ch/buun-stack/pkg/vault"
	"github.com/buun-ch/buun-stack/pkg/vault/provision"
	"github.com/buun-ch/buun-stack/pkg/vault/token"
	infraerrors "github.com/buun-ch/buun-stack/shared/infrastructure/errors"
)

func adminClient() *vault.Client {
	client, err := vault.NewClient(vault.ClientConfig{Address: vaultContainer.Address()})
	Expect(err).NotTo(HaveOccurred())
	Expect(client.AuthenticateToken(vaultContainer.RootToken())).To(Succeed())
	return client
}

func newStore(values map[string]string) *secretstore.Store {
	env := map[string]string{
		"JUPYTERHUB_USER":           "alice",
		"VAULT_ADDR":                vaultContainer.Address(),
		"SECRETSTORE_EXPORT_TOKENS": "false",
	}
	for k, v := range values {
		env[k] = v
	}
	cfg, err := config.FromMap(env)
	Expect(err).NotTo(HaveOccurred())

	store, err := secretstore.New(cfg, secretstore.WithLogger(GinkgoLogr))
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(store.Close)
	return store
}

var _ = Describe("Secret store against Vault", Ordered, func() {
	var provisioned *provision.Result

	BeforeAll(func() {
		By("provisioning alice's policy and notebook token")
		p := provision.NewProvisioner(token.NewStaticTokenSource(vaultContainer.RootToken(), "root token"), logr.Discard())
		var err error
		provisioned, err = p.Provision(suiteCtx, adminClient(), "alice", &provision.Config{})
		Expect(err).NotTo(HaveOccurred())
		Expect(provisioned.PolicyWritten).To(BeTrue())
	})

	Context("provisioning", func() {
		It("writes a policy scoped to the user's namespace", func() {
			hcl, err := adminClient().ReadPolicy(suiteCtx, "jupyter-user-alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(hcl).To(ContainSubstring(`path "secret/data/jupyter/users/alice/*"`))
		})

		It("creates a renewable token bounded by the maximum lifetime", func() {
			client, err := vault.NewClient(vault.ClientConfig{Address: vaultContainer.Address()})
			Expect(err).NotTo(HaveOccurred())
			Expect(client.AuthenticateToken(provisioned.Token)).To(Succeed())

			info, err := client.LookupSelf(suiteCtx)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Renewable).To(BeTrue())
			Expect(info.Policies).To(ContainElement("jupyter-user-alice"))
			Expect(info.ExplicitMaxTTL).To(Equal(token.DefaultProvisionedMaxTTL))
			Expect(info.DisplayName).To(ContainSubstring("notebook-alice"))
		})
	})

	Context("provisioned mode", Ordered, func() {
		var store *secretstore.Store

		BeforeAll(func() {
			store = newStore(map[string]string{
				"SECRETSTORE_MODE":     "provisioned",
				"NOTEBOOK_VAULT_TOKEN": provisioned.Token,
			})
		})

		It("stores and reads a record", func() {
			Expect(store.Put(suiteCtx, "api-keys", map[string]string{"openai": "sk-123", "github": "ghp-456"})).To(Succeed())
			Expect(store.GetField(suiteCtx, "api-keys", "openai")).To(Equal("sk-123"))
			Expect(store.List(suiteCtx)).To(Equal([]string{"api-keys"}))
		})

		It("deletes the record with its last field", func() {
			Expect(store.DeleteField(suiteCtx, "api-keys", "openai")).To(Succeed())
			Expect(store.Get(suiteCtx, "api-keys")).To(Equal(map[string]string{"github": "ghp-456"}))

			Expect(store.DeleteField(suiteCtx, "api-keys", "github")).To(Succeed())
			_, err := store.Get(suiteCtx, "api-keys")
			Expect(infraerrors.IsNotFoundError(err)).To(BeTrue(), "got %v", err)
			Expect(store.List(suiteCtx)).To(BeEmpty())
		})

		It("cannot reach another user's namespace", func() {
			Expect(adminClient().KV(vault.DefaultKVMount).Write(suiteCtx, "jupyter/users/bob/keys", map[string]string{"a": "b"})).To(Succeed())

			client, err := vault.NewClient(vault.ClientConfig{Address: vaultContainer.Address()})
			Expect(err).NotTo(HaveOccurred())
			Expect(client.AuthenticateToken(provisioned.Token)).To(Succeed())

			_, _, err = client.KV(vault.DefaultKVMount).Read(suiteCtx, "jupyter/users/bob/keys")
			Expect(infraerrors.IsPermissionDeniedError(err)).To(BeTrue(), "got %v", err)
		})

		It("reports a revoked token as terminal", func() {
			Expect(vaultContainer.run(suiteCtx, "revoke token", "token", "revoke", provisioned.Token)).To(Succeed())

			_, err := store.List(suiteCtx)
			Expect(infraerrors.IsTerminalAuthError(err)).To(BeTrue(), "got %v", err)
			Expect(err.Error()).To(ContainSubstring("restart your notebook server"))
		})
	})

	Context("refresh mode", func() {
		It("refreshes a stale access token and logs in with the new one", func() {
			stale, err := idp.AccessToken("alice", time.Now().Add(time.Minute))
			Expect(err).NotTo(HaveOccurred())

			store := newStore(map[string]string{
				"JUPYTERHUB_OIDC_ACCESS_TOKEN":  stale,
				"JUPYTERHUB_OIDC_REFRESH_TOKEN": "alice:0",
				"KEYCLOAK_TOKEN_URL":            idp.URL + "/token",
			})
			before := idp.Requests()

			Expect(store.Put(suiteCtx, "db", map[string]string{"password": "s3cret"})).To(Succeed())
			Expect(idp.Requests()).To(Equal(before + 1))
			Expect(store.ListFields(suiteCtx, "db")).To(Equal([]string{"password"}))
			Expect(idp.Requests()).To(Equal(before + 1))

			st := store.Status()
			Expect(st.Authenticated).To(BeTrue())
			Expect(st.Token.RefreshCount).To(Equal(1))
		})

		It("keeps an idle session fresh in the background", func() {
			fresh, err := idp.AccessToken("alice", time.Now().Add(time.Hour))
			Expect(err).NotTo(HaveOccurred())

			store := newStore(map[string]string{
				"JUPYTERHUB_OIDC_ACCESS_TOKEN":    fresh,
				"JUPYTERHUB_OIDC_REFRESH_TOKEN":   "alice:0",
				"KEYCLOAK_TOKEN_URL":              idp.URL + "/token",
				"SECRETSTORE_BACKGROUND_INTERVAL": "200ms",
			})
			Expect(store.StartBackgroundRefresh()).To(Succeed())

			Eventually(func() int {
				return store.Status().Refresher.RefreshCount
			}, 10*time.Second, 100*time.Millisecond).Should(BeNumerically(">=", 2))

			Expect(store.StopBackgroundRefresh()).To(Succeed())
			Expect(store.Status().Refresher.LastError).To(BeEmpty())
		})
	})
})
