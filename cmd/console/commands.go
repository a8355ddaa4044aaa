package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dhis2-sre/im-console/pkg/container"
	"github.com/dhis2-sre/im-console/pkg/gateway"
	"github.com/dhis2-sre/im-console/pkg/model"
	"github.com/dhis2-sre/im-console/pkg/store"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func newRootCommand(a *app, init func(verbose bool) error) *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "im-console",
		Short:         "Manage containers of Kubernetes clusters",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return init(verbose)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")

	root.AddCommand(
		loginCommand(a),
		logoutCommand(a),
		whoamiCommand(a),
		connectionsCommand(a),
		containersCommand(a),
		podsCommand(a),
		usersCommand(a),
		dashboardCommand(a),
	)
	return root
}

func loginCommand(a *app) *cobra.Command {
	var request model.LoginRequest
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			if request.Password == "" {
				request.Password = os.Getenv("IM_CONSOLE_PASSWORD")
			}
			response, err := a.auth.Login(cmd.Context(), request)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", response.User.Username, response.User.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&request.Username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&request.Password, "password", "p", "", "password, defaults to $IM_CONSOLE_PASSWORD")
	cmd.Flags().BoolVar(&request.Remember, "remember", true, "keep the session after the console exits")
	return cmd
}

func logoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.auth.Logout(cmd.Context())
		},
	}
}

func whoamiCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !a.auth.IsAuthenticated(ctx) {
				return errors.New("not signed in")
			}
			me, err := a.auth.Me(ctx)
			if err != nil {
				return err
			}
			claims, err := a.auth.Claims(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> role=%s admin=%t expires=%s\n",
				me.Username, me.Email, me.Role, a.auth.IsAdmin(ctx), claims.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
}

func connectionsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connections",
		Aliases: []string{"conn"},
		Short:   "Manage cluster connections",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			connections, err := a.connections.List(cmd.Context())
			if err != nil {
				return err
			}
			return printConnections(cmd.OutOrStdout(), connections)
		},
	}

	var draft model.ConnectionDraft
	var credentialFile string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := readCredential(a.fs, &draft, credentialFile); err != nil {
				return err
			}
			created, err := a.connections.Create(cmd.Context(), draft)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Connection %s created\n", created.ID)
			return nil
		},
	}
	test := &cobra.Command{
		Use:   "test",
		Short: "Check whether a connection reaches its cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := readCredential(a.fs, &draft, credentialFile); err != nil {
				return err
			}
			if err := a.connections.TestConnection(cmd.Context(), draft); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Connection succeeded")
			return nil
		},
	}
	for _, c := range []*cobra.Command{add, test} {
		c.Flags().StringVar(&draft.Name, "name", "", "name of the connection")
		c.Flags().StringVar(&draft.Endpoint, "endpoint", "", "API server URL")
		c.Flags().StringVar((*string)(&draft.AuthMode), "mode", string(model.AuthModeKubeconfig), "kubeconfig or token")
		c.Flags().StringVar(&credentialFile, "credential-file", "", "file holding the kubeconfig or the token")
		c.Flags().StringVar(&draft.DefaultNamespace, "namespace", "", "default namespace")
	}

	activate := &cobra.Command{
		Use:   "activate ID",
		Short: "Make a connection the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			activated, err := a.connections.Activate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Connection %s is active\n", activated.Name)
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.connections.Delete(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(list, add, test, activate, remove)
	return cmd
}

func readCredential(fs afero.Fs, draft *model.ConnectionDraft, path string) error {
	if path == "" {
		return nil
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return fmt.Errorf("failed to read credential: %v", err)
	}
	draft.CredentialPayload = string(data)
	if draft.AuthMode == model.AuthModeToken {
		draft.CredentialPayload = strings.TrimSpace(draft.CredentialPayload)
	}
	return nil
}

func containersCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "containers",
		Aliases: []string{"c"},
		Short:   "Manage containers of the active connection",
	}

	var filter store.Filter
	var page, pageSize int
	list := &cobra.Command{
		Use:   "list",
		Short: "List containers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a.store.LoadConnections(ctx)
			if !cmd.Flags().Changed("namespace") {
				filter.Namespace = a.store.Snapshot().Containers.Filter.Namespace
			}
			if err := a.store.Query(ctx, filter, page, pageSize).Wait(); err != nil {
				return err
			}
			return printContainers(cmd.OutOrStdout(), a.store.Snapshot().Containers)
		},
	}
	list.Flags().StringVarP(&filter.Namespace, "namespace", "n", "", "namespace, defaults to the one of the active connection")
	list.Flags().StringVar(&filter.Status, "status", "", "only containers with this status")
	list.Flags().StringVar(&filter.Search, "search", "", "only containers matching this text")
	list.Flags().IntVar(&page, "page", 1, "page")
	list.Flags().IntVar(&pageSize, "page-size", store.DefaultPageSize, "page size")
	cmd.AddCommand(list)

	var namespace string
	for _, action := range []model.Action{model.ActionStart, model.ActionStop, model.ActionRestart, model.ActionPause, model.ActionResume, model.ActionDestroy} {
		action := action
		c := &cobra.Command{
			Use:   string(action) + " ID...",
			Short: strings.ToUpper(string(action[:1])) + string(action[1:]) + " containers",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				a.store.LoadConnections(ctx)
				if len(args) > 1 {
					return a.store.Batch(ctx, args, action, namespace)
				}
				return a.store.PerformAction(ctx, args[0], action, namespace)
			},
		}
		c.Flags().StringVarP(&namespace, "namespace", "n", "", "namespace of the containers")
		cmd.AddCommand(c)
	}

	var create container.CreateRequest
	var image, ports, env, cpu, memory string
	add := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := configFromFlags(args[0], image, ports, env, cpu, memory)
			if err != nil {
				return err
			}
			create.Config = config
			created, err := a.store.CreateContainer(cmd.Context(), create)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Container %s created\n", created.Key())
			return nil
		},
	}
	add.Flags().StringVar(&image, "image", "", "image to run")
	add.Flags().StringVar(&ports, "ports", "", "comma separated ports like 80,8443:443,53/udp")
	add.Flags().StringVar(&env, "env", "", "KEY=VALUE lines")
	add.Flags().StringVar(&cpu, "cpu", "", "cpu request and limit like 100m:500m")
	add.Flags().StringVar(&memory, "memory", "", "memory request and limit like 128Mi:256Mi")
	add.Flags().StringVarP(&create.Namespace, "namespace", "n", model.DefaultNamespace, "namespace")
	cmd.AddCommand(add)

	var tail int
	var follow bool
	logs := &cobra.Command{
		Use:   "logs ID",
		Short: "Show the logs of a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := container.LogParams{ContainerID: args[0], Tail: container.Ptr(tail)}
			if namespace != "" {
				params.Namespace = container.Ptr(namespace)
			}
			if follow {
				params.Follow = container.Ptr(true)
			}
			result, err := a.containers.Logs(cmd.Context(), params)
			if err != nil {
				return err
			}
			for _, line := range result.Logs {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	logs.Flags().IntVar(&tail, "tail", 100, "number of lines")
	logs.Flags().BoolVarP(&follow, "follow", "f", false, "ask the backend to include lines written while fetching")
	logs.Flags().StringVarP(&namespace, "namespace", "n", "", "namespace of the container")
	cmd.AddCommand(logs)

	var dir string
	download := &cobra.Command{
		Use:   "download-logs ID",
		Short: "Download the complete logs of a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/containers/" + url.PathEscape(args[0]) + "/logs/download"
			return a.gateway.Download(cmd.Context(), path, args[0]+".log", gateway.NewFileSaver(a.fs, dir))
		},
	}
	download.Flags().StringVar(&dir, "dir", ".", "directory to save the logs in")
	cmd.AddCommand(download)

	export := &cobra.Command{
		Use:   "export ID",
		Short: "Print the config of a container as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := a.containers.Export(cmd.Context(), args[0], namespace)
			if err != nil {
				return err
			}
			blob, err := container.EncodeConfig(config)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(blob)
			return err
		},
	}
	export.Flags().StringVarP(&namespace, "namespace", "n", "", "namespace of the container")
	cmd.AddCommand(export)

	importCmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Create a container from a YAML or JSON config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blob, err := afero.ReadFile(a.fs, args[0])
			if err != nil {
				return fmt.Errorf("failed to read config: %v", err)
			}
			imported, err := a.containers.Import(cmd.Context(), blob, namespace)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Container %s imported\n", imported.Key())
			return nil
		},
	}
	importCmd.Flags().StringVarP(&namespace, "namespace", "n", "", "namespace to import into")
	cmd.AddCommand(importCmd)

	return cmd
}

// configFromFlags builds a container config from free text flags.
func configFromFlags(name, image, ports, env, cpu, memory string) (model.ContainerConfig, error) {
	config := model.ContainerConfig{Name: name, Image: image}

	var err error
	if config.Ports, err = container.ParsePorts(strings.Split(ports, ",")); err != nil {
		return config, err
	}
	if config.Env, err = container.ParseEnv(strings.ReplaceAll(env, ";", "\n")); err != nil {
		return config, err
	}
	cpuRequest, cpuLimit, _ := strings.Cut(cpu, ":")
	memoryRequest, memoryLimit, _ := strings.Cut(memory, ":")
	if config.Resources, err = container.ParseResources(cpuRequest, cpuLimit, memoryRequest, memoryLimit); err != nil {
		return config, err
	}
	return config, container.CheckConfig(&config)
}

func podsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pods",
		Short: "Work with pods by namespace and name",
	}

	var namespace string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the pods of a namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			containers, err := a.cluster.Containers(cmd.Context(), namespace)
			if err != nil {
				return err
			}
			return printContainers(cmd.OutOrStdout(), store.ContainerList{Items: containers})
		},
	}
	list.Flags().StringVarP(&namespace, "namespace", "n", model.DefaultNamespace, "namespace")

	actions := map[string]func(ctx context.Context, namespace, pod string) error{
		"start":   a.cluster.Start,
		"stop":    a.cluster.Stop,
		"restart": a.cluster.Restart,
		"delete":  a.cluster.Delete,
	}
	cmd.AddCommand(list)
	for name, action := range actions {
		name, action := name, action
		cmd.AddCommand(&cobra.Command{
			Use:   name + " NAMESPACE POD",
			Short: strings.ToUpper(name[:1]) + name[1:] + " a pod",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return action(cmd.Context(), args[0], args[1])
			},
		})
	}
	return cmd
}

func usersCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage users",
	}

	var filter model.UserFilter
	var page int
	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := a.users.List(cmd.Context(), page, 0, filter)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tROLE\tSTATUS")
			for _, u := range users.Items {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", u.ID, u.Username, u.Email, u.Role, u.Status)
			}
			fmt.Fprintf(w, "\npage %d of %d, %d users\n", users.Page, users.TotalPages, users.Total)
			return w.Flush()
		},
	}
	list.Flags().StringVar(&filter.Search, "search", "", "only users matching this text")
	list.Flags().StringVar(&filter.Role, "role", "", "only users with this role")
	list.Flags().StringVar(&filter.Status, "status", "", "only users with this status")
	list.Flags().IntVar(&page, "page", 1, "page")

	var password string
	reset := &cobra.Command{
		Use:   "reset-password ID",
		Short: "Set a new password for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id uint
			if _, err := fmt.Sscan(args[0], &id); err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			return a.users.ResetPassword(cmd.Context(), id, password)
		},
	}
	reset.Flags().StringVar(&password, "password", "", "the new password")

	cmd.AddCommand(list, reset)
	return cmd
}

func dashboardCommand(a *app) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show statistics of the active connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a.store.LoadConnections(ctx)
			if err := a.store.Refresh(ctx).Wait(); err != nil {
				return err
			}
			if err := a.store.RefreshUsage(ctx); err != nil {
				return err
			}
			printDashboard(cmd.OutOrStdout(), a.store.Snapshot())
			if !watch {
				return nil
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()
			go a.store.Run(ctx)

			ticker := time.NewTicker(a.store.Snapshot().Dashboard.RefreshInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					printDashboard(cmd.OutOrStdout(), a.store.Snapshot())
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep refreshing until interrupted")
	return cmd
}

func printConnections(w io.Writer, connections []model.Connection) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tENDPOINT\tMODE\tNAMESPACE\tACTIVE")
	for _, c := range connections {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n", c.ID, c.Name, c.Endpoint, c.AuthMode, c.Namespace(), c.IsActive)
	}
	return tw.Flush()
}

func printContainers(w io.Writer, list store.ContainerList) error {
	if list.Error != "" {
		return errors.New(list.Error)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tNAMESPACE\tIMAGE\tSTATUS\tRESTARTS\tAGE")
	for _, c := range list.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n", c.ID, c.Name, c.Namespace, c.Image, c.Status, c.RestartCount, c.Age)
	}
	if list.Pagination.PageSize > 0 {
		fmt.Fprintf(tw, "\npage %d, %d containers\n", list.Pagination.Page, list.Pagination.Total)
	}
	return tw.Flush()
}

func printDashboard(w io.Writer, state store.State) {
	s := state.Dashboard.Statistics
	fmt.Fprintf(w, "containers: %d running, %d pending, %d stopped, %d failed of %d in %d namespaces, %d restarts\n",
		s.RunningContainers, s.PendingContainers, s.StoppedContainers, s.ErrorContainers, s.TotalContainers, s.TotalNamespaces, s.TotalRestartCounter)
	if n := len(state.Dashboard.ResourceUsage); n > 0 {
		usage := state.Dashboard.ResourceUsage[n-1]
		fmt.Fprintf(w, "usage: cpu %.1f%%, memory %.1f%% over %d containers\n", usage.CPU, usage.Memory, usage.Samples)
	}
	for _, n := range state.Notifications {
		fmt.Fprintf(w, "[%s] %s: %s\n", n.Type, n.Title, n.Message)
	}
}
