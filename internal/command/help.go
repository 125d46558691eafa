package command

import "github.com/verte-zerg/topy/internal/field"

const helpServer = `TID <n> <command>
	Give a transaction id that is returned with the result
user <user_id> <command> [args]
	Execute a command on an existing user
	See "user <user_id> help" for more information
user* <user_id> <command> [args]
	Execute a command on a user
	Create a new user if <user_id> doesn't exist
groups <command>
	Execute a command on groups
	See "groups help" for more information
sets <command>
	Execute a command on users sets
	See "sets help" for more information
contests <command>
	Execute a command on users contests
	See "contests help" for more information
fields <command>
	Execute a command on fields
	See "fields help" for more information
autodump <command>
	Execute a command on autodump
	See "autodump help" for more information
info
	Get server information
stats
	Get statistics about server
dump <path>
	Dump data in file <path>
quit
	Close connection with client
halt
	Stop server
mode <text|php_serialize>
	Set default output format
report <field> [from <set>] [where <expr>]
	Return a report about a given field
clear <field> [from <set>] [where <expr>]
	Clear a given field to a group of users
top <field> [rule <rule name>] [inversed] [from <set>] [set <user1>, <user2>, ...] [where <expr>] [size <n = 32>] [join (<field>, *|<rule>) (<field>, *|<rule>)...]
	Show most active users of given groups
count [from <set>] [where <expr>]
	Count users
count_active <field> [limit <seconds = 300> | since <gmt>] [from <set>] [where <expr>]
	Count active users
cleanup <field> [limit <seconds = 2678400> | since <gmt>] [from <set>] [where <expr>]
	Delete inactive users
time
	Return internal timer values
help
	Show commands list
debug
	Show debug information
`

const helpUser = `:: <field> <command>
	Execute <command> on field <field>
get
	Get user data
show
	Show user data
group set <name>
	Set user group
group get
	Get user group
delete
	Delete user
clear
	Clear user
help
	Show commands list
`

const helpField = `add <n>
	Add n to field value
get
	Get field value
set <value>
	Set field value
rules
	List score rules
help
	Show commands list
`

const helpFieldEvents = `total get
	Get total
total set <value>
	Set total
`

const helpFieldLog = `insert [unique] <id> [, <date>]
	Insert item
`

func fieldHelp(kind field.Kind) string {
	switch kind {
	case field.KindEvents:
		return helpFieldEvents
	case field.KindLog, field.KindUlog:
		return helpFieldLog
	}
	return ""
}

const helpGroups = `add <name> [<id> <mask>]
	Create new group
delete <name>
	Delete group
list
	Show list of groups
clear
	Clear groups
stats
	Show number of users in each group
help
	Show commands list
`

const helpSets = `select into <name> [where <expr>]
	Select all users that match <expr> into set <name>
delete <name>
	Delete users set
list
	Show list of sets
help
	Show commands list
`

const helpContests = `:: <name> <command>
	Execute <command> on contest <name>
generate <name> <field> [rule <rule name>] [inversed] [from <set>] [where <expr>]
	Generate contest
delete <name>
	Delete contest
list
	Show list of contests
help
	Show commands list
`

const helpContest = `get [from <int = 0>] [limit <int = 128>] [join (<field>, *|<rule>) (<field>, *|<rule>)...]
	Get contest content
find <user>
	Find the rank of a given user
clear
	Clear contest
size
	Return size of contest
help
	Show commands list
`

const helpFields = `add <name> <type>
	Add field
list
	List fields
help
	Show commands list
`

const helpAutodump = `stats
	Get stats about last autodump
set <target> <delay>
	Set autodump settings
enable <1/0>
	Enable autodump
force
	Force autodump
help
	Show commands list
`
