/*
Package events carries state-change notifications between components.

Every audit, action plan, action and service state change publishes a
Notification on the Broker. Delivery is in-process and best-effort (slow
subscribers drop); durability comes from the bbolt Journal, which records
every published notification under a monotonic sequence so external systems
can replay what they missed.
*/
package events
