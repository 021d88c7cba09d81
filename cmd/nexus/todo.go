package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/nexus/internal/todo"
)

// buildTodoCmd wires a standalone todo list, scoped to this process only —
// it exists for inspecting/seeding a list outside of an agent run, not as a
// durable store shared across invocations.
func buildTodoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "todo",
		Short: "Inspect or seed a scratch todo list",
	}
	cmd.AddCommand(buildTodoListCmd(), buildTodoAddCmd())
	return cmd
}

func buildTodoListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the current todo list (empty unless seeded this run)",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := todo.NewStore(nil)
			items := store.Read()
			if len(items) == 0 {
				fmt.Println("(empty)")
				return nil
			}
			for _, it := range items {
				fmt.Printf("%s [%s/%s] %s\n", it.ID, it.Status, it.Priority, it.Content)
			}
			return nil
		},
	}
}

func buildTodoAddCmd() *cobra.Command {
	var priority string

	cmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Add a single pending item to a fresh todo list and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := todo.NewStore(nil)
			item := todo.Item{
				ID:       uuid.NewString(),
				Content:  args[0],
				Status:   todo.StatusPending,
				Priority: todo.Priority(priority),
			}
			if err := store.Write([]todo.Item{item}); err != nil {
				return err
			}
			fmt.Printf("%s [%s/%s] %s\n", item.ID, item.Status, item.Priority, item.Content)
			return nil
		},
	}
	cmd.Flags().StringVar(&priority, "priority", string(todo.PriorityMedium), "low|medium|high")
	return cmd
}
